// Command opis reconciles a directory of documents against a catalog,
// renames matches to their canonical names and writes the document
// inventory. It can also run as an HTTP service or an inbox watcher.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MalithGihan/opis-service/internal/apperr"
	"github.com/MalithGihan/opis-service/internal/archive"
	"github.com/MalithGihan/opis-service/internal/catalog"
	"github.com/MalithGihan/opis-service/internal/config"
	"github.com/MalithGihan/opis-service/internal/ingest"
	"github.com/MalithGihan/opis-service/internal/inventory"
	"github.com/MalithGihan/opis-service/internal/ledger"
	"github.com/MalithGihan/opis-service/internal/logging"
	"github.com/MalithGihan/opis-service/internal/metrics"
	"github.com/MalithGihan/opis-service/internal/numbering"
	"github.com/MalithGihan/opis-service/internal/ocr"
	"github.com/MalithGihan/opis-service/internal/pipeline"
	"github.com/MalithGihan/opis-service/internal/reconcile"
	"github.com/MalithGihan/opis-service/internal/server"
	"github.com/MalithGihan/opis-service/internal/store"
	"github.com/MalithGihan/opis-service/internal/watch"
	"github.com/MalithGihan/opis-service/pkg/types"
)

var version = "dev"

const usage = `usage: opis <command> [flags] [args]

commands:
  run        extract archives, reconcile, number and write the inventory
  extract    unpack archives into --dir
  reconcile  rename files matching the catalog, nothing else
  inventory  write the inventory of --dir without renaming
  number     stamp sequence numbers onto copies of the documents
  audit      compare an inventory against the files of --dir
  text       dump extracted text and images of --dir into --dir/.extracted
  serve      run the HTTP service
  watch      turn archives dropped into --inbox into jobs
  version    print the version
`

func main() { os.Exit(run(os.Args[1:])) }

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]

	var fn func(context.Context, *app, []string) int
	switch cmd {
	case "run":
		fn = cmdRun
	case "extract":
		fn = cmdExtract
	case "reconcile":
		fn = cmdReconcile
	case "inventory":
		fn = cmdInventory
	case "number":
		fn = cmdNumber
	case "audit":
		fn = cmdAudit
	case "text":
		fn = cmdText
	case "serve":
		fn = cmdServe
	case "watch":
		fn = cmdWatch
	case "version", "--version", "-v":
		fmt.Println("opis", version)
		return 0
	case "help", "--help", "-h":
		fmt.Print(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "opis: unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	fs := flag.NewFlagSet("opis "+cmd, flag.ContinueOnError)
	ov := bindFlags(fs)
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	cfg, err := config.Load(ov.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opis: %v\n", err)
		return 1
	}
	ov.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "opis: %v\n", err)
		return 1
	}

	a, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opis: %v\n", err)
		return 1
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a, fs.Args())
}

// overrides are the flags shared by every command. Only flags that were
// set on the command line replace config values.
type overrides struct {
	configPath string
	dir        string
	catalog    string
	workers    int
	dryRun     bool
	prefix     bool
	stamp      bool
	stampDir   string
	renderers  string
	logLevel   string
	logFile    string
	ledger     string
	dataRoot   string
	port       string
	inbox      string
}

func bindFlags(fs *flag.FlagSet) *overrides {
	o := &overrides{}
	fs.StringVar(&o.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&o.dir, "dir", "", "directory to process")
	fs.StringVar(&o.catalog, "catalog", "", "catalog file (xlsx, csv or docx)")
	fs.IntVar(&o.workers, "workers", 0, "parallel metadata workers")
	fs.BoolVar(&o.dryRun, "dry-run", false, "report renames without touching files")
	fs.BoolVar(&o.prefix, "prefix", false, `prefix inventory names with "N. "`)
	fs.BoolVar(&o.stamp, "stamp", false, "stamp sequence numbers onto copies of PDFs and images")
	fs.StringVar(&o.stampDir, "stamp-dir", "", "output directory for stamped copies")
	fs.StringVar(&o.renderers, "renderers", "", "comma-separated inventory formats (markdown,json,yaml,xlsx,docx)")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&o.logFile, "log-file", "", "persistent run log")
	fs.StringVar(&o.ledger, "ledger", "", "SQLite run ledger path")
	fs.StringVar(&o.dataRoot, "data", "", "job storage root (serve, watch)")
	fs.StringVar(&o.port, "port", "", "HTTP port (serve)")
	fs.StringVar(&o.inbox, "inbox", "", "inbox directory (watch)")
	return o
}

func (o *overrides) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dir":
			cfg.WorkDir = o.dir
		case "catalog":
			cfg.CatalogPath = o.catalog
		case "workers":
			cfg.Workers = o.workers
		case "dry-run":
			cfg.DryRun = o.dryRun
		case "prefix":
			cfg.PrefixNames = o.prefix
		case "stamp":
			cfg.Stamp = o.stamp
		case "stamp-dir":
			cfg.StampDir = o.stampDir
		case "renderers":
			cfg.Renderers = nil
			for _, r := range strings.Split(o.renderers, ",") {
				if r = strings.TrimSpace(r); r != "" {
					cfg.Renderers = append(cfg.Renderers, r)
				}
			}
		case "log-level":
			cfg.LogLevel = o.logLevel
		case "log-file":
			cfg.LogFile = o.logFile
		case "ledger":
			cfg.LedgerPath = o.ledger
		case "data":
			cfg.DataRoot = o.dataRoot
		case "port":
			cfg.Port = o.port
		case "inbox":
			cfg.InboxDir = o.inbox
		}
	})
}

type app struct {
	cfg      *config.Config
	log      *zap.Logger
	closeLog func()
	metrics  *metrics.Metrics
	ext      *ingest.Extractor
	ledger   *ledger.Ledger
}

func newApp(cfg *config.Config) (*app, error) {
	log, closeLog, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, closeLog: closeLog, metrics: metrics.New()}
	a.ext = ingest.New(log,
		ingest.WithRecognizer(ocr.New(cfg.OCRLanguages)),
		ingest.WithMaxFileSize(cfg.MaxFileSize))
	if cfg.LedgerPath != "" {
		if a.ledger, err = ledger.Open(cfg.LedgerPath); err != nil {
			closeLog()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.log.Warn("ledger close", zap.Error(err))
		}
	}
	a.closeLog()
}

func (a *app) deps() pipeline.Deps {
	return pipeline.Deps{Log: a.log, Metrics: a.metrics, Extractor: a.ext, Ledger: a.ledger}
}

func (a *app) fail(err error) int {
	a.log.Error("command failed", zap.String("code", apperr.Code(err)), zap.Error(err))
	return 1
}

func cmdRun(ctx context.Context, a *app, archives []string) int {
	res, err := pipeline.Run(ctx, a.cfg, a.deps(), archives...)
	if res == nil {
		return a.fail(err)
	}
	printEvents(res.Events)
	for _, m := range res.Messages {
		fmt.Fprintln(os.Stderr, "!", m)
	}
	fmt.Printf("%d files, %d renamed, %d unchanged, %d collisions, %d degraded\n",
		res.Stats.Total, res.Stats.Renamed, res.Stats.Unchanged, res.Stats.Collisions, res.Stats.Degraded)
	for _, p := range res.Written {
		fmt.Println("wrote", p)
	}
	if err != nil {
		return a.fail(err)
	}
	return 0
}

func cmdExtract(ctx context.Context, a *app, archives []string) int {
	if len(archives) == 0 {
		fmt.Fprintln(os.Stderr, "opis extract: no archives given")
		return 2
	}
	errs := archive.New(a.log, a.metrics).ExtractAll(ctx, archives, a.cfg.WorkDir)
	for _, err := range errs {
		fmt.Fprintln(os.Stderr, "!", err)
	}
	if len(errs) > 0 {
		return 1
	}
	return 0
}

func cmdReconcile(ctx context.Context, a *app, _ []string) int {
	cat, err := catalog.Load(a.cfg.CatalogPath,
		catalog.Columns{Canonical: a.cfg.Catalog.CanonicalColumn, Alternate: a.cfg.Catalog.AlternateColumn},
		catalog.WithLogger(a.log))
	if err != nil {
		return a.fail(err)
	}
	rec, err := reconcile.New(cat, a.ext, a.log, reconcile.Options{
		Workers: a.cfg.Workers,
		DryRun:  a.cfg.DryRun,
		Skip:    a.outputNames(),
		Metrics: a.metrics,
	})
	if err != nil {
		return a.fail(err)
	}
	res, err := rec.Reconcile(ctx, a.cfg.WorkDir)
	printEvents(res.Events)
	for _, m := range res.Messages {
		fmt.Fprintln(os.Stderr, "!", m)
	}
	if err != nil {
		return a.fail(err)
	}
	return 0
}

// scan collects metadata of the current files of the work directory in
// traversal order, without any catalog lookup.
func (a *app) scan(ctx context.Context) ([]types.DocumentRecord, error) {
	paths, unreadable, err := reconcile.Discover(a.cfg.WorkDir, a.outputNames())
	if err != nil {
		return nil, err
	}
	for _, uerr := range unreadable {
		a.log.Warn("unreadable entry skipped", zap.String("code", apperr.CodeExtraction), zap.Error(uerr))
	}
	recs := make([]types.DocumentRecord, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs = append(recs, a.ext.Metadata(p))
	}
	return numbering.AssignSequence(recs, numbering.Options{PrefixNames: a.cfg.PrefixNames}), nil
}

func (a *app) outputNames() []string {
	renderers, _ := inventory.Resolve(a.cfg.Renderers)
	exts := make([]string, 0, len(renderers))
	for _, r := range renderers {
		exts = append(exts, r.Ext())
	}
	return reconcile.OutputNames(a.cfg.InventoryName, exts, a.cfg.LogFile, a.cfg.LedgerPath)
}

func cmdInventory(ctx context.Context, a *app, _ []string) int {
	renderers, err := inventory.Resolve(a.cfg.Renderers)
	if err != nil {
		return a.fail(err)
	}
	recs, err := a.scan(ctx)
	if err != nil {
		return a.fail(err)
	}
	rep := inventory.Build(recs)
	rep.RelativeTo(a.cfg.WorkDir)
	written, err := inventory.WriteFiles(a.cfg.WorkDir, a.cfg.InventoryName, rep, renderers)
	for _, p := range written {
		fmt.Println("wrote", p)
	}
	if err != nil {
		return a.fail(err)
	}
	return 0
}

func cmdNumber(ctx context.Context, a *app, _ []string) int {
	recs, err := a.scan(ctx)
	if err != nil {
		return a.fail(err)
	}
	outDir := a.cfg.StampDir
	if outDir == "" {
		outDir = filepath.Join(a.cfg.WorkDir, pipeline.DefaultStampDir)
	}
	st := numbering.NewStamper(a.log)
	failed := 0
	for _, r := range recs {
		out, err := st.Stamp(ctx, r, outDir)
		switch {
		case errors.Is(err, numbering.ErrStampUnsupported):
		case err != nil:
			failed++
			fmt.Fprintf(os.Stderr, "! %s: %v\n", r.DisplayName, err)
		default:
			fmt.Printf("%d\t%s\n", r.Sequence, out)
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func cmdAudit(_ context.Context, a *app, args []string) int {
	path := filepath.Join(a.cfg.WorkDir, a.cfg.InventoryName+".json")
	if len(args) > 0 {
		path = args[0]
	}
	rep, err := inventory.LoadJSON(path)
	if err != nil {
		return a.fail(err)
	}
	ds := inventory.Audit(rep, a.cfg.WorkDir, a.ext)
	for _, d := range ds {
		fmt.Printf("%d\t%s\t%s\twant=%s got=%s\n", d.Number, d.Name, d.Kind, d.Want, d.Got)
	}
	if len(ds) > 0 {
		a.log.Warn("inventory does not match directory", zap.Int("discrepancies", len(ds)))
		return 1
	}
	fmt.Printf("%d entries match\n", len(rep.Entries))
	return 0
}

func cmdText(ctx context.Context, a *app, args []string) int {
	outDir := filepath.Join(a.cfg.WorkDir, ingest.DefaultCorpusDir)
	if len(args) > 0 {
		outDir = args[0]
	}
	st, err := a.ext.ExtractCorpus(ctx, a.cfg.WorkDir, outDir)
	if err != nil {
		return a.fail(err)
	}
	fmt.Printf("%d files, %d images, %d failed -> %s\n",
		st.Files, st.Images, len(st.Failed), filepath.Join(outDir, ingest.CorpusFile))
	return 0
}

func cmdServe(ctx context.Context, a *app, _ []string) int {
	st, err := store.New(a.cfg.DataRoot)
	if err != nil {
		return a.fail(err)
	}
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           server.New(a.cfg, st, a.deps()).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	a.log.Info("listening", zap.String("addr", srv.Addr), zap.String("data_root", a.cfg.DataRoot))

	select {
	case err := <-errc:
		return a.fail(err)
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return a.fail(err)
	}
	return 0
}

func cmdWatch(ctx context.Context, a *app, _ []string) int {
	st, err := store.New(a.cfg.DataRoot)
	if err != nil {
		return a.fail(err)
	}
	w := watch.New(a.cfg, st, a.deps())
	if err := w.Run(ctx); err != nil {
		return a.fail(err)
	}
	out, _ := json.Marshal(w.Stats())
	fmt.Println(string(out))
	return 0
}

func printEvents(evs []types.RenameEvent) {
	for _, ev := range evs {
		switch ev.Outcome {
		case types.RenameDone, types.RenameDryRun:
			fmt.Printf("%s: %s -> %s\n", ev.Outcome, ev.From, ev.To)
		default:
			fmt.Printf("%s: %s -> %s (%s)\n", ev.Outcome, ev.From, ev.To, ev.Reason)
		}
	}
}
