package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MalithGihan/opis-service/pkg/types"
)

// Metrics holds the run counters on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	files       *prometheus.CounterVec
	matches     *prometheus.CounterVec
	extractErrs *prometheus.CounterVec
	archives    *prometheus.CounterVec
	runDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opis_files_total",
			Help: "Files reconciled, by rename outcome.",
		}, []string{"outcome"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opis_matches_total",
			Help: "Catalog match results, by method.",
		}, []string{"method"}),
		extractErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opis_extraction_errors_total",
			Help: "Per-file metadata or text extraction failures, by format.",
		}, []string{"format"}),
		archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opis_archives_total",
			Help: "Archives processed, by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "opis_run_duration_seconds",
			Help:    "Wall time of a full pipeline run.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	m.reg.MustRegister(m.files, m.matches, m.extractErrs, m.archives, m.runDuration)
	return m
}

func (m *Metrics) RecordRename(o types.RenameOutcome) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) RecordMatch(k types.MatchKind) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(k.String()).Inc()
}

func (m *Metrics) RecordExtractionError(format string) {
	if m == nil {
		return
	}
	if format == "" {
		format = "none"
	}
	m.extractErrs.WithLabelValues(format).Inc()
}

func (m *Metrics) RecordArchive(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.archives.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and embedding.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
