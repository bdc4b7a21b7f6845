// Package metrics implements C17: Prometheus collectors for the pipeline
// and the /metrics, /health admin surface. Adapted from the donor's
// internal/middleware/monitoring.go (CounterVec/HistogramVec/Gauge shape,
// metricsWriter status capture), relabeled from HTTP route dimensions to
// pipeline-node dimensions, plus node-level counters/histograms the donor
// never had since it ran a single-pass (not retry-looped) pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics collectors for the RAG pipeline.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge

	NodeDuration  *prometheus.HistogramVec
	NodeErrors    *prometheus.CounterVec
	RetriesTotal  prometheus.Counter
	WarningsTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragbox_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragbox_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "path"},
		),
		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ragbox_http_active_requests",
				Help: "Number of currently active HTTP requests.",
			},
		),
		NodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragbox_pipeline_node_duration_seconds",
				Help:    "Pipeline node latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"node"},
		),
		NodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragbox_pipeline_node_errors_total",
				Help: "Total pipeline node failures by node and error category.",
			},
			[]string{"node", "category"},
		),
		RetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ragbox_pipeline_retries_total",
				Help: "Total grade->rewrite_query->retrieve retry cycles.",
			},
		),
		WarningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragbox_pipeline_warnings_total",
				Help: "Total non-terminal pipeline warnings by message.",
			},
			[]string{"message"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal, m.RequestDuration, m.ActiveRequests,
		m.NodeDuration, m.NodeErrors, m.RetriesTotal, m.WarningsTotal,
	)
	return m
}

// NodeObserved records one node's completion latency.
func (m *Metrics) NodeObserved(node string, d time.Duration) {
	m.NodeDuration.WithLabelValues(node).Observe(d.Seconds())
}

// NodeFailed records a node-level terminal failure.
func (m *Metrics) NodeFailed(node, category string) {
	m.NodeErrors.WithLabelValues(node, category).Inc()
}

// Warned records a non-terminal warning.
func (m *Metrics) Warned(message string) {
	m.WarningsTotal.WithLabelValues(message).Inc()
}

// HTTPMiddleware records request-level metrics, mirroring the donor's
// Monitoring middleware.
func HTTPMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.ActiveRequests.Inc()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(sw.status)

			m.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			m.ActiveRequests.Dec()
		})
	}
}

// Handler returns the Prometheus /metrics endpoint handler.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher, delegating to the underlying ResponseWriter.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
