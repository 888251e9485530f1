// Package reconcile matches the files of a directory against the catalog
// and renames confirmed matches to their canonical names.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/MalithGihan/opis-service/internal/apperr"
	"github.com/MalithGihan/opis-service/internal/catalog"
	"github.com/MalithGihan/opis-service/internal/ingest"
	"github.com/MalithGihan/opis-service/internal/match"
	"github.com/MalithGihan/opis-service/internal/metrics"
	"github.com/MalithGihan/opis-service/pkg/types"
)

type Options struct {
	Workers int
	DryRun  bool
	// Skip holds base names that are never treated as documents.
	Skip    []string
	Metrics *metrics.Metrics
}

type Reconciler struct {
	cat  *catalog.Catalog
	idx  *match.Index
	ext  *ingest.Extractor
	log  *zap.Logger
	opts Options
}

// Stats summarizes one reconciliation.
type Stats struct {
	Total      int `json:"total"`
	Renamed    int `json:"renamed"`
	Unchanged  int `json:"unchanged"`
	Collisions int `json:"collisions"`
	Degraded   int `json:"degraded"`
	Failed     int `json:"failed"`
}

type Result struct {
	Records []types.DocumentRecord `json:"records"`
	Events  []types.RenameEvent    `json:"events"`
	// Messages are file-scoped problems, one per line.
	Messages []string `json:"messages,omitempty"`
	Stats    Stats    `json:"stats"`
}

func New(cat *catalog.Catalog, ext *ingest.Extractor, log *zap.Logger, opts Options) (*Reconciler, error) {
	if cat == nil {
		return nil, errors.New("reconcile: nil catalog")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if ext == nil {
		ext = ingest.New(log)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	idx, err := match.NewIndex(cat.Keys())
	if err != nil {
		return nil, fmt.Errorf("reconcile: compile catalog keys: %w", err)
	}
	return &Reconciler{cat: cat, idx: idx, ext: ext, log: log, opts: opts}, nil
}

// Reconcile walks dir, extracts metadata and matches every file, then
// applies renames one at a time in traversal order. A cancelled context
// stops between files; completed renames stay in place.
func (r *Reconciler) Reconcile(ctx context.Context, dir string) (Result, error) {
	var res Result
	files, unreadable, err := Discover(dir, r.opts.Skip)
	if err != nil {
		return res, fmt.Errorf("discover %s: %w", dir, err)
	}
	for _, uerr := range unreadable {
		r.log.Warn("unreadable entry skipped", zap.String("code", apperr.CodeExtraction), zap.Error(uerr))
		res.Messages = append(res.Messages, uerr.Error())
	}

	planned := make([]plan, len(files))
	launched := 0
	g := new(errgroup.Group)
	g.SetLimit(r.opts.Workers)
	for i, path := range files {
		if ctx.Err() != nil {
			break
		}
		launched++
		g.Go(func() error {
			planned[i] = r.plan(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	claims := NewClaims()
	for _, p := range planned[:launched] {
		if ctx.Err() != nil {
			break
		}
		if p.skipped {
			continue
		}
		rec, ev := r.apply(p, claims)
		res.Records = append(res.Records, rec)
		if ev != nil {
			res.Events = append(res.Events, *ev)
		}
		res.Messages = append(res.Messages, p.messages...)
		res.tally(rec, ev, r.opts.Metrics)
		if ev != nil && ev.Reason != "" && ev.Outcome != types.RenameDryRun {
			res.Messages = append(res.Messages, fmt.Sprintf("%s: %s", filepath.Base(ev.From), ev.Reason))
		}
	}

	r.log.Info("reconcile finished",
		zap.String("dir", dir),
		zap.Int("total", res.Stats.Total),
		zap.Int("renamed", res.Stats.Renamed),
		zap.Int("collisions", res.Stats.Collisions),
		zap.Int("degraded", res.Stats.Degraded),
		zap.Bool("dry_run", r.opts.DryRun))
	return res, ctx.Err()
}

type plan struct {
	rec      types.DocumentRecord
	messages []string
	skipped  bool
}

// plan runs extraction and matching for one file. It never touches disk
// beyond reading.
func (r *Reconciler) plan(ctx context.Context, path string) plan {
	if ctx.Err() != nil {
		return plan{skipped: true}
	}
	p := plan{rec: r.ext.Metadata(path)}
	if p.rec.Degraded() {
		p.messages = append(p.messages, fmt.Sprintf("%s: %s", p.rec.DisplayName, p.rec.Err))
	}

	stem := types.Stem(path)
	if canonical, ok := r.cat.Lookup(stem); ok {
		p.rec.Match = types.MatchResult{Kind: types.MatchedByName, Canonical: canonical, Key: catalog.Normalize(stem)}
		return p
	}
	if !types.DetectKind(path).ContentScannable() {
		return p
	}

	text, err := r.ext.Text(ctx, path)
	if err != nil {
		xe := &apperr.ExtractionError{Path: path, Format: p.rec.Format, Cause: err}
		r.log.Warn("content scan skipped", zap.String("path", path), zap.String("code", apperr.CodeExtraction), zap.Error(err))
		p.messages = append(p.messages, fmt.Sprintf("%s: %s", p.rec.DisplayName, xe.Error()))
		return p
	}
	if key, ok := r.idx.First(norm.NFC.String(text)); ok {
		canonical, _ := r.cat.Lookup(key)
		p.rec.Match = types.MatchResult{Kind: types.MatchedByContent, Canonical: canonical, Key: key}
	}
	return p
}

// apply decides and performs the rename for one planned record.
func (r *Reconciler) apply(p plan, claims *Claims) (types.DocumentRecord, *types.RenameEvent) {
	rec := p.rec
	if !rec.Match.Matched() {
		return rec, nil
	}
	rec.Designation = rec.Match.Canonical

	from := rec.Path
	ev := &types.RenameEvent{From: from}
	if strings.ContainsAny(rec.Match.Canonical, `/\`) {
		ev.To, ev.Outcome, ev.Reason = from, types.RenameFailed, "canonical name contains a path separator"
		r.log.Error("rename failed", zap.String("from", from), zap.String("canonical", rec.Match.Canonical), zap.String("reason", ev.Reason))
		return rec, ev
	}
	to := filepath.Join(filepath.Dir(from), rec.Match.Canonical+filepath.Ext(from))
	ev.To = to

	if to == from {
		ev.Outcome = types.RenameUnchanged
		claims.Claim(from, to)
		return rec, ev
	}
	if collides(from, to) || !claims.Claim(from, to) {
		ce := &apperr.RenameCollisionError{From: from, To: to}
		ev.Outcome, ev.Reason = types.RenameCollision, ce.Error()
		r.log.Warn("rename collision",
			zap.String("from", from),
			zap.String("to", to),
			zap.String("code", apperr.CodeRenameCollision))
		return rec, ev
	}

	if r.opts.DryRun {
		ev.Outcome = types.RenameDryRun
		r.log.Info("would rename", zap.String("from", from), zap.String("to", to), zap.String("method", rec.Match.Kind.String()))
		return rec, ev
	}
	if err := os.Rename(from, to); err != nil {
		ev.Outcome, ev.Reason = types.RenameFailed, err.Error()
		r.log.Error("rename failed", zap.String("from", from), zap.String("to", to), zap.Error(err))
		return rec, ev
	}
	ev.Outcome = types.RenameDone
	rec.Path = to
	rec.DisplayName = filepath.Base(to)
	r.log.Info("renamed", zap.String("from", from), zap.String("to", to), zap.String("method", rec.Match.Kind.String()))
	return rec, ev
}

// collides reports whether to is occupied by a file other than from. On
// case-insensitive filesystems a case-only rename resolves to the same file.
func collides(from, to string) bool {
	ti, err := os.Stat(to)
	if err != nil {
		return false
	}
	fi, err := os.Stat(from)
	if err != nil {
		return true
	}
	return !os.SameFile(fi, ti)
}

func (res *Result) tally(rec types.DocumentRecord, ev *types.RenameEvent, m *metrics.Metrics) {
	res.Stats.Total++
	if rec.Degraded() {
		res.Stats.Degraded++
		m.RecordExtractionError(rec.Format)
	}
	m.RecordMatch(rec.Match.Kind)

	outcome := types.RenameUnchanged
	if ev != nil {
		outcome = ev.Outcome
	}
	switch outcome {
	case types.RenameDone, types.RenameDryRun:
		res.Stats.Renamed++
	case types.RenameCollision:
		res.Stats.Collisions++
	case types.RenameFailed:
		res.Stats.Failed++
	default:
		res.Stats.Unchanged++
	}
	m.RecordRename(outcome)
}
