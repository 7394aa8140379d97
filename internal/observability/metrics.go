package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transition outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeForbidden = "forbidden"
	OutcomeInvalid   = "invalid"
	OutcomeConflict  = "conflict"
)

// Metrics exposes Prometheus collectors on a private registry.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	claimConflicts   prometheus.Counter
}

// NewMetrics registers collectors, including Go runtime and process metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Errors rendered to clients by error code.",
		}, []string{"method", "route", "code"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickets_transitions_total",
			Help: "Ticket workflow transitions by outcome.",
		}, []string{"from", "to", "outcome"}),
		claimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickets_claim_conflicts_total",
			Help: "Claims lost to a concurrent writer.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.errorsTotal,
		m.transitionsTotal,
		m.claimConflicts,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest observes a served request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError counts an error response.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(method, route, code).Inc()
}

// RecordTransition counts a workflow transition attempt.
func (m *Metrics) RecordTransition(from, to, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to, outcome).Inc()
}

// RecordClaimConflict counts a claim that lost the race.
func (m *Metrics) RecordClaimConflict() {
	if m == nil {
		return
	}
	m.claimConflicts.Inc()
}
