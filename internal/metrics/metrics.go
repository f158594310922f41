package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"screen-recorder/internal/domain"
)

// Metrics holds Prometheus collectors for recording sessions. It satisfies
// session.Observer.
type Metrics struct {
	registry        *prometheus.Registry
	sessionsTotal   *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	sessionDuration prometheus.Histogram
	chunksTotal     *prometheus.CounterVec
	chunkBytesTotal *prometheus.CounterVec
	flushedBytes    *prometheus.HistogramVec
	saveErrorsTotal *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	requestsTotal   prometheus.Counter
	errorsTotal     prometheus.Counter
}

// New creates and registers the recorder metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenrec_sessions_started_total",
			Help: "Total number of recording sessions started, by webcam use",
		}, []string{"webcam"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screenrec_active_sessions",
			Help: "Number of sessions currently recording or stopping",
		}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screenrec_session_duration_seconds",
			Help:    "Wall time from start to completion of a session",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}),
		chunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenrec_chunks_total",
			Help: "Total number of encoded chunks appended, by modality",
		}, []string{"modality"}),
		chunkBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenrec_chunk_bytes_total",
			Help: "Total encoded bytes appended, by modality",
		}, []string{"modality"}),
		flushedBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screenrec_flushed_bytes",
			Help:    "Size of each flushed stream payload",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		}, []string{"modality"}),
		saveErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenrec_save_errors_total",
			Help: "Total number of flushed streams that could not be saved",
		}, []string{"modality"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenrec_operation_failures_total",
			Help: "Total number of failed user operations, by operation",
		}, []string{"op"}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screenrec_http_requests_total",
			Help: "Total number of control API requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screenrec_http_errors_total",
			Help: "Total number of control API responses with error status (4xx or 5xx)",
		}),
	}

	registry.MustRegister(
		m.sessionsTotal,
		m.activeSessions,
		m.sessionDuration,
		m.chunksTotal,
		m.chunkBytesTotal,
		m.flushedBytes,
		m.saveErrorsTotal,
		m.failuresTotal,
		m.requestsTotal,
		m.errorsTotal,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SessionStarted counts a new session.
func (m *Metrics) SessionStarted(webcam bool) {
	label := "false"
	if webcam {
		label = "true"
	}
	m.sessionsTotal.WithLabelValues(label).Inc()
	m.activeSessions.Inc()
}

// SessionCompleted records the session length.
func (m *Metrics) SessionCompleted(elapsed time.Duration) {
	m.activeSessions.Dec()
	m.sessionDuration.Observe(elapsed.Seconds())
}

// ChunkReceived counts one appended chunk.
func (m *Metrics) ChunkReceived(modality domain.Modality, size int) {
	m.chunksTotal.WithLabelValues(string(modality)).Inc()
	m.chunkBytesTotal.WithLabelValues(string(modality)).Add(float64(size))
}

// StreamFlushed records the payload size, or a save error.
func (m *Metrics) StreamFlushed(modality domain.Modality, size int, err error) {
	if err != nil {
		m.saveErrorsTotal.WithLabelValues(string(modality)).Inc()
		return
	}
	m.flushedBytes.WithLabelValues(string(modality)).Observe(float64(size))
}

// OperationFailed counts a failed user operation.
func (m *Metrics) OperationFailed(op string) {
	m.failuresTotal.WithLabelValues(op).Inc()
}

// IncRequests increments the control API request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the control API error counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
