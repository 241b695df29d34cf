package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "itemreviewed"

// Metrics tracks operational metrics for feed and page runs.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	FetchAttempts       *prometheus.CounterVec
	FetchDuration       *prometheus.HistogramVec
	RecordsBuilt        *prometheus.CounterVec
	RecordsDropped      *prometheus.CounterVec
	RecordsStored       *prometheus.CounterVec
	ItemsFailed         *prometheus.CounterVec
	TranslationAttempts *prometheus.CounterVec
	ItemsInFlight       prometheus.Gauge

	logger *slog.Logger
	server *http.Server
}

// NewMetrics creates a Metrics instance backed by its own registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "HTTP fetch attempts by outcome",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of completed fetches, retries and backoff included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"fetcher"}),
		RecordsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_built_total",
			Help:      "Claim review records built by source",
		}, []string{"source"}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records dropped by the pipeline by stage",
		}, []string{"stage"}),
		RecordsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_stored_total",
			Help:      "Records written by storage backend",
		}, []string{"backend"}),
		ItemsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_failed_total",
			Help:      "Feed items or pages that failed by stage",
		}, []string{"stage"}),
		TranslationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_attempts_total",
			Help:      "Translation provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		ItemsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items_in_flight",
			Help:      "Items currently being processed",
		}),
		logger: logger.With("component", "metrics"),
	}

	reg.MustRegister(
		m.FetchAttempts,
		m.FetchDuration,
		m.RecordsBuilt,
		m.RecordsDropped,
		m.RecordsStored,
		m.ItemsFailed,
		m.TranslationAttempts,
		m.ItemsInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// FetchAttempt records the outcome of one HTTP attempt.
func (m *Metrics) FetchAttempt(outcome string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(outcome).Inc()
}

// FetchCompleted records the total duration of a fetch.
func (m *Metrics) FetchCompleted(fetcher string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(fetcher).Observe(d.Seconds())
}

// RecordBuilt counts a built record.
func (m *Metrics) RecordBuilt(source string) {
	if m == nil {
		return
	}
	m.RecordsBuilt.WithLabelValues(source).Inc()
}

// RecordDropped counts a record dropped at the given pipeline stage.
func (m *Metrics) RecordDropped(stage string) {
	if m == nil {
		return
	}
	m.RecordsDropped.WithLabelValues(stage).Inc()
}

// RecordsWritten counts records written by a backend.
func (m *Metrics) RecordsWritten(backend string, n int) {
	if m == nil {
		return
	}
	m.RecordsStored.WithLabelValues(backend).Add(float64(n))
}

// ItemFailed counts a per-item failure.
func (m *Metrics) ItemFailed(stage string) {
	if m == nil {
		return
	}
	m.ItemsFailed.WithLabelValues(stage).Inc()
}

// TranslationAttempt records one provider call.
func (m *Metrics) TranslationAttempt(provider, outcome string) {
	if m == nil {
		return
	}
	m.TranslationAttempts.WithLabelValues(provider, outcome).Inc()
}

// InFlight adjusts the in-flight gauge by delta.
func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.ItemsInFlight.Add(delta)
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server in the background.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
