package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waypointgames/waypoint/pkg/session"
)

const metricsNamespace = "waypoint"

// Metrics holds the API's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestsActive  *prometheus.GaugeVec
	requestDuration *prometheus.HistogramVec
	sessionsTotal   *prometheus.CounterVec
	progressTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers the API collectors together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		requestsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_active",
				Help:      "Number of in-flight HTTP requests",
			},
			[]string{"endpoint"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),
		sessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sessions_total",
				Help:      "Session create requests by result (created, existing, replayed)",
			},
			[]string{"result"},
		),
		progressTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "progress_writes_total",
				Help:      "Progress writes by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestsActive,
		m.requestDuration,
		m.sessionsTotal,
		m.progressTotal,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instrument records requests to the route named by pattern.
func (m *Metrics) instrument(pattern string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		active := m.requestsActive.WithLabelValues(pattern)
		active.Inc()
		defer active.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.requestsTotal.WithLabelValues(pattern, r.Method, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(pattern, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) sessionCreated(res session.CreateResult) {
	if m == nil {
		return
	}
	result := "existing"
	switch {
	case res.Created && res.Superseded != nil:
		result = "replayed"
	case res.Created:
		result = "created"
	}
	m.sessionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) progressWritten(err error, completed bool) {
	if m == nil {
		return
	}
	result := "saved"
	switch {
	case errors.Is(err, session.ErrCompleted), errors.Is(err, session.ErrSuperseded):
		result = "rejected"
	case errors.Is(err, session.ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	case completed:
		result = "completed"
	}
	m.progressTotal.WithLabelValues(result).Inc()
}

// statusRecorder captures the response status. It passes Hijack through
// so websocket upgrades work behind instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
