// Package server exposes jobs over HTTP: upload archives and a catalog, run
// the pipeline, fetch the inventory.
package server

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MalithGihan/opis-service/internal/apperr"
	"github.com/MalithGihan/opis-service/internal/archive"
	"github.com/MalithGihan/opis-service/internal/config"
	"github.com/MalithGihan/opis-service/internal/inventory"
	"github.com/MalithGihan/opis-service/internal/pipeline"
	"github.com/MalithGihan/opis-service/internal/reconcile"
	"github.com/MalithGihan/opis-service/internal/store"
	"github.com/MalithGihan/opis-service/pkg/types"
)

const maxMemory = 64 << 20

type Server struct {
	cfg  *config.Config
	st   *store.FS
	deps pipeline.Deps

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(cfg *config.Config, st *store.FS, deps pipeline.Deps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Server{cfg: cfg, st: st, deps: deps, locks: make(map[string]*sync.Mutex)}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "opis-service"})
	})
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}
	r.Post("/jobs", s.createJob)
	r.Post("/jobs/{id}/run", s.runJob)
	r.Get("/jobs/{id}/inventory", s.inventory)
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.deps.Log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// createJob stores archives[] and an optional catalog upload.
func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.st.NewJob()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var rejected []string
	for _, fh := range r.MultipartForm.File["archives[]"] {
		if !archive.IsArchive(fh.Filename) {
			rejected = append(rejected, fh.Filename+": unsupported archive format")
			continue
		}
		if err := s.saveUpload(id, fh.Filename, fh.Open); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if fhs := r.MultipartForm.File["catalog"]; len(fhs) > 0 {
		name := "catalog" + filepath.Ext(fhs[0].Filename)
		if err := s.saveUpload(id, name, fhs[0].Open); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "jobId": id, "rejected": rejected})
}

func (s *Server) saveUpload(id, name string, open func() (multipart.File, error)) error {
	src, err := open()
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = s.st.SaveUpload(id, name, src)
	return err
}

type runSummary struct {
	RunID         string              `json:"runId"`
	DryRun        bool                `json:"dryRun"`
	Stats         reconcile.Stats     `json:"stats"`
	Events        []types.RenameEvent `json:"events"`
	Written       []string            `json:"written,omitempty"`
	ArchiveErrors []string            `json:"archiveErrors,omitempty"`
	Messages      []string            `json:"messages,omitempty"`
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	uploads, err := s.st.Uploads(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	lock := s.jobLock(id)
	if !lock.TryLock() {
		writeError(w, http.StatusConflict, "job is already running")
		return
	}
	defer lock.Unlock()

	cfg := *s.cfg
	cfg.WorkDir = s.st.WorkDir(id)
	cfg.LedgerPath = ""
	cfg.DryRun = queryBool(r, "dryRun", cfg.DryRun)
	cfg.PrefixNames = queryBool(r, "prefix", cfg.PrefixNames)
	if !slices.Contains(cfg.Renderers, "json") {
		cfg.Renderers = append(append([]string(nil), cfg.Renderers...), "json")
	}

	var archives []string
	for _, u := range uploads {
		switch {
		case archive.IsArchive(u):
			archives = append(archives, u)
		case strings.HasPrefix(filepath.Base(u), "catalog."):
			cfg.CatalogPath = u
		}
	}

	res, err := pipeline.Run(r.Context(), &cfg, s.deps, archives...)
	var ce *apperr.CatalogLoadError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"ok": false, "code": apperr.Code(err), "error": err.Error()})
		return
	case res == nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := runSummary{
		RunID:         res.RunID,
		DryRun:        res.DryRun,
		Stats:         res.Stats,
		Events:        res.Events,
		ArchiveErrors: res.ArchiveErrors,
		Messages:      res.Messages,
	}
	for _, p := range res.Written {
		out.Written = append(out.Written, filepath.Base(p))
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusServiceUnavailable
		out.Messages = append(out.Messages, err.Error())
	}
	writeJSON(w, status, out)
}

func (s *Server) inventory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.st.Exists(id) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	p := filepath.Join(s.st.WorkDir(id), s.cfg.InventoryName+".json")
	rep, err := inventory.LoadJSON(p)
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, "inventory not built yet")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) jobLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func queryBool(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
