// Package watch turns archives dropped into an inbox directory into jobs.
// Each archive gets its own job directory and a full pipeline run against
// the configured catalog.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/MalithGihan/opis-service/internal/archive"
	"github.com/MalithGihan/opis-service/internal/config"
	"github.com/MalithGihan/opis-service/internal/pipeline"
	"github.com/MalithGihan/opis-service/internal/store"
)

// DefaultSettle is how long an archive must see no writes before it is
// picked up.
const DefaultSettle = 2 * time.Second

type Stats struct {
	Jobs   int64 `json:"jobs"`
	Failed int64 `json:"failed"`
}

type Watcher struct {
	cfg    *config.Config
	st     *store.FS
	deps   pipeline.Deps
	log    *zap.Logger
	settle time.Duration

	mu      sync.Mutex
	pending map[string]time.Time

	jobs   atomic.Int64
	failed atomic.Int64
}

type Option func(*Watcher)

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) Option { return func(w *Watcher) { w.settle = d } }

func New(cfg *config.Config, st *store.FS, deps pipeline.Deps, opts ...Option) *Watcher {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	w := &Watcher{
		cfg:     cfg,
		st:      st,
		deps:    deps,
		log:     log.Named("watch"),
		settle:  DefaultSettle,
		pending: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Watcher) Stats() Stats {
	return Stats{Jobs: w.jobs.Load(), Failed: w.failed.Load()}
}

// Run blocks until ctx is cancelled. Archives already in the inbox are
// queued on start.
func (w *Watcher) Run(ctx context.Context) error {
	inbox := w.cfg.InboxDir
	if inbox == "" {
		return errors.New("watch: inbox directory is not configured")
	}
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(inbox); err != nil {
		return fmt.Errorf("watch %s: %w", inbox, err)
	}

	existing, err := os.ReadDir(inbox)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	for _, e := range existing {
		if !e.IsDir() {
			w.touch(filepath.Join(inbox, e.Name()))
		}
	}

	tick := time.NewTicker(w.settle / 4)
	defer tick.Stop()
	w.log.Info("watching inbox", zap.String("dir", inbox), zap.Duration("settle", w.settle))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch stopped", zap.Int64("jobs", w.jobs.Load()), zap.Int64("failed", w.failed.Load()))
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.touch(ev.Name)
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.forget(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		case now := <-tick.C:
			for _, p := range w.due(now) {
				if _, err := w.Handle(ctx, p); err != nil && ctx.Err() == nil {
					w.log.Error("inbox archive failed", zap.String("path", p), zap.Error(err))
				}
			}
		}
	}
}

func (w *Watcher) touch(path string) {
	if !archive.IsArchive(path) {
		return
	}
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
}

func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for p, seen := range w.pending {
		if now.Sub(seen) >= w.settle {
			out = append(out, p)
			delete(w.pending, p)
		}
	}
	return out
}

// Handle creates a job for one archive, moves the archive into the job's
// uploads and runs the pipeline on the job's work directory.
func (w *Watcher) Handle(ctx context.Context, path string) (*pipeline.Result, error) {
	if !archive.IsArchive(path) {
		return nil, fmt.Errorf("%s: not a supported archive", filepath.Base(path))
	}
	id, err := w.st.NewJob()
	if err != nil {
		return nil, err
	}
	log := w.log.With(zap.String("job_id", id), zap.String("archive", filepath.Base(path)))

	dst, err := w.moveUpload(id, path)
	if err != nil {
		w.failed.Add(1)
		return nil, err
	}

	cfg := *w.cfg
	cfg.WorkDir = w.st.WorkDir(id)
	deps := w.deps
	deps.Log = log

	res, err := pipeline.Run(ctx, &cfg, deps, dst)
	w.jobs.Add(1)
	if err != nil {
		w.failed.Add(1)
		return res, err
	}
	for _, m := range res.Messages {
		log.Warn("job message", zap.String("message", m))
	}
	log.Info("job done",
		zap.String("run_id", res.RunID),
		zap.Int("files", res.Stats.Total),
		zap.Int("renamed", res.Stats.Renamed))
	return res, nil
}

// moveUpload renames the archive into uploads, copying when the inbox
// is on another device.
func (w *Watcher) moveUpload(id, path string) (string, error) {
	dst := filepath.Join(w.st.UploadsDir(id), filepath.Base(path))
	if err := os.Rename(path, dst); err == nil {
		return dst, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	dst, err = w.st.SaveUpload(id, filepath.Base(path), f)
	f.Close()
	if err != nil {
		return "", err
	}
	return dst, os.Remove(path)
}
