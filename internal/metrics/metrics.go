// Package metrics exposes Prometheus counters and histograms for key
// validation, proxied traffic and usage events.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics when they are disabled.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "veil"

// Outcome labels for key validation
const (
	OutcomeValid    = "valid"
	OutcomeCacheHit = "cache_hit"
)

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	keyValidations   *prometheus.CounterVec
	gatewayRequests  *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	eventsSent       prometheus.Counter
	eventsDropped    *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	maintenanceItems *prometheus.CounterVec
}

// New creates the registry with process and Go runtime collectors.
func New() *Metrics {
	log.Info().Msg("Initializing Prometheus metrics")

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		keyValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keys",
			Name:      "validations_total",
			Help:      "API key validations by outcome.",
		}, []string{"outcome"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Proxied requests by API path, method and status code.",
		}, []string{"api_path", "method", "code"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Latency of proxied requests including the upstream.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"api_path"}),
		eventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "sent_total",
			Help:      "Usage events delivered to the sink.",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Usage events dropped by reason.",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "Requests rejected by the rate limiter by category.",
		}, []string{"category"}),
		maintenanceItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "rows_total",
			Help:      "Rows touched by scheduled maintenance jobs.",
		}, []string{"job"}),
	}

	m.registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
		m.keyValidations,
		m.gatewayRequests,
		m.gatewayLatency,
		m.eventsSent,
		m.eventsDropped,
		m.rateLimited,
		m.maintenanceItems,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// KeyValidation counts one validation with its outcome: valid, cache_hit or an error code.
func (m *Metrics) KeyValidation(outcome string) {
	if m == nil {
		return
	}
	m.keyValidations.WithLabelValues(outcome).Inc()
}

// GatewayRequest records one proxied request.
func (m *Metrics) GatewayRequest(apiPath, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(apiPath, method, strconv.Itoa(code)).Inc()
	m.gatewayLatency.WithLabelValues(apiPath).Observe(elapsed.Seconds())
}

// EventsSent counts delivered usage events.
func (m *Metrics) EventsSent(n int) {
	if m == nil {
		return
	}
	m.eventsSent.Add(float64(n))
}

// EventsDropped counts usage events lost for reason.
func (m *Metrics) EventsDropped(reason string, n int) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Add(float64(n))
}

// RateLimited counts one rejected request.
func (m *Metrics) RateLimited(category string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(category).Inc()
}

// MaintenanceRows counts rows touched by a maintenance job.
func (m *Metrics) MaintenanceRows(job string, n int64) {
	if m == nil {
		return
	}
	m.maintenanceItems.WithLabelValues(job).Add(float64(n))
}
