// Package pipeline runs one full pass: archive extraction, catalog load,
// reconciliation, numbering, inventory rendering and the run ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MalithGihan/opis-service/internal/apperr"
	"github.com/MalithGihan/opis-service/internal/archive"
	"github.com/MalithGihan/opis-service/internal/catalog"
	"github.com/MalithGihan/opis-service/internal/config"
	"github.com/MalithGihan/opis-service/internal/ingest"
	"github.com/MalithGihan/opis-service/internal/inventory"
	"github.com/MalithGihan/opis-service/internal/ledger"
	"github.com/MalithGihan/opis-service/internal/metrics"
	"github.com/MalithGihan/opis-service/internal/numbering"
	"github.com/MalithGihan/opis-service/internal/reconcile"
	"github.com/MalithGihan/opis-service/pkg/types"
)

// DefaultStampDir is used under the work directory when no stamp dir is
// configured. It is hidden so later runs do not pick the copies up.
const DefaultStampDir = ".numbered"

// Deps are the shared collaborators of a run. Only Log is required.
type Deps struct {
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	Extractor *ingest.Extractor
	Ledger    *ledger.Ledger
}

type Result struct {
	RunID         string                 `json:"runId"`
	Dir           string                 `json:"dir"`
	DryRun        bool                   `json:"dryRun"`
	Records       []types.DocumentRecord `json:"records"`
	Events        []types.RenameEvent    `json:"events"`
	Report        inventory.Report       `json:"report"`
	Written       []string               `json:"written,omitempty"`
	Stamped       []string               `json:"stamped,omitempty"`
	ArchiveErrors []string               `json:"archiveErrors,omitempty"`
	Messages      []string               `json:"messages,omitempty"`
	Stats         reconcile.Stats        `json:"stats"`
}

// Run processes cfg.WorkDir after unpacking archives into it. Only a
// catalog failure is fatal, and it is detected before anything on disk
// changes. A cancelled context returns the partial result with ctx.Err().
func Run(ctx context.Context, cfg *config.Config, deps Deps, archives ...string) (*Result, error) {
	start := time.Now()
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	ext := deps.Extractor
	if ext == nil {
		ext = ingest.New(log, ingest.WithMaxFileSize(cfg.MaxFileSize))
	}
	renderers, err := inventory.Resolve(cfg.Renderers)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.NewString(), Dir: cfg.WorkDir, DryRun: cfg.DryRun}
	log = log.With(zap.String("run_id", res.RunID))

	cat, err := catalog.Load(cfg.CatalogPath,
		catalog.Columns{Canonical: cfg.Catalog.CanonicalColumn, Alternate: cfg.Catalog.AlternateColumn},
		catalog.WithLogger(log))
	if err != nil {
		log.Error("catalog load failed", zap.Error(err))
		return nil, err
	}

	if len(archives) > 0 {
		for _, aerr := range archive.New(log, deps.Metrics).ExtractAll(ctx, archives, cfg.WorkDir) {
			var ce *apperr.RenameCollisionError
			if !errors.As(aerr, &ce) {
				res.ArchiveErrors = append(res.ArchiveErrors, aerr.Error())
			}
			res.Messages = append(res.Messages, aerr.Error())
		}
	}

	if deps.Ledger != nil {
		if err := deps.Ledger.Begin(ctx, res.RunID, cfg.WorkDir); err != nil {
			res.note(log, "ledger begin", err)
		}
	}

	exts := make([]string, 0, len(renderers))
	for _, r := range renderers {
		exts = append(exts, r.Ext())
	}
	rec, err := reconcile.New(cat, ext, log, reconcile.Options{
		Workers: cfg.Workers,
		DryRun:  cfg.DryRun,
		Skip:    reconcile.OutputNames(cfg.InventoryName, exts, cfg.LogFile, cfg.LedgerPath),
		Metrics: deps.Metrics,
	})
	if err != nil {
		return nil, err
	}
	rr, runErr := rec.Reconcile(ctx, cfg.WorkDir)
	res.Events = rr.Events
	res.Stats = rr.Stats
	res.Messages = append(res.Messages, rr.Messages...)

	res.Records = numbering.AssignSequence(rr.Records, numbering.Options{PrefixNames: cfg.PrefixNames})
	res.Report = inventory.Build(res.Records)
	res.Report.RunID = res.RunID
	res.Report.RelativeTo(cfg.WorkDir)

	if !cfg.DryRun && runErr == nil {
		if cfg.Stamp {
			res.stamp(ctx, log, cfg)
		}
		written, err := inventory.WriteFiles(cfg.WorkDir, cfg.InventoryName, res.Report, renderers)
		res.Written = written
		if err != nil {
			res.note(log, "inventory write", err)
		}
	}

	if deps.Ledger != nil {
		res.persist(ctx, log, deps.Ledger)
	}
	deps.Metrics.ObserveRun(time.Since(start))

	log.Info("run finished",
		zap.String("dir", cfg.WorkDir),
		zap.Int("files", res.Stats.Total),
		zap.Int("renamed", res.Stats.Renamed),
		zap.Int("collisions", res.Stats.Collisions),
		zap.Int("degraded", res.Stats.Degraded),
		zap.Int("archive_errors", len(res.ArchiveErrors)),
		zap.Duration("took", time.Since(start)))
	return res, runErr
}

func (res *Result) stamp(ctx context.Context, log *zap.Logger, cfg *config.Config) {
	outDir := cfg.StampDir
	if outDir == "" {
		outDir = filepath.Join(cfg.WorkDir, DefaultStampDir)
	}
	st := numbering.NewStamper(log)
	for _, r := range res.Records {
		out, err := st.Stamp(ctx, r, outDir)
		switch {
		case errors.Is(err, numbering.ErrStampUnsupported):
			log.Debug("stamp skipped", zap.String("path", r.Path), zap.String("format", r.Format))
		case err != nil:
			res.note(log, "stamp "+r.DisplayName, err)
		default:
			res.Stamped = append(res.Stamped, out)
		}
	}
}

func (res *Result) persist(ctx context.Context, log *zap.Logger, l *ledger.Ledger) {
	for _, ev := range res.Events {
		if err := l.RecordRename(ctx, res.RunID, ev); err != nil {
			res.note(log, "ledger rename", err)
			break
		}
	}
	if err := l.RecordEntries(ctx, res.RunID, res.Report.Entries); err != nil {
		res.note(log, "ledger entries", err)
	}
	if err := l.Finish(ctx, res.RunID, ledger.Summary{
		Renamed:    res.Stats.Renamed,
		Collisions: res.Stats.Collisions,
		Failed:     res.Stats.Failed,
	}); err != nil {
		res.note(log, "ledger finish", err)
	}
}

// note logs a non-fatal error and keeps it in the result messages.
func (res *Result) note(log *zap.Logger, what string, err error) {
	log.Error(what+" failed", zap.Error(err))
	res.Messages = append(res.Messages, fmt.Sprintf("%s: %v", what, err))
}
