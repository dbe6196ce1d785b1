// Package metrics exposes Prometheus counters for HTTP traffic and the
// session verification state machine.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hsportal/portal/internal/session"
)

const namespace = "portal"

// Metrics owns the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	verifications *prometheus.CounterVec
	transitions   *prometheus.CounterVec
}

// New registers the portal collectors plus the Go and process collectors on
// a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_verifications_total",
			Help:      "Finished identity verifications by outcome.",
		}, []string{"outcome"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_state_transitions_total",
			Help:      "Session cache state transitions.",
		}, []string{"from", "to"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// TrackLiveSessions exports the number of live session caches.
func (m *Metrics) TrackLiveSessions(manager *session.Manager) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_caches_live",
		Help:      "Session caches currently held in memory.",
	}, func() float64 { return float64(manager.Len()) })
}

// VerificationFinished implements session.Observer.
func (m *Metrics) VerificationFinished(outcome string) {
	m.verifications.WithLabelValues(outcome).Inc()
}

// StateChanged implements session.Observer.
func (m *Metrics) StateChanged(from, to session.State) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// Middleware counts requests by matched route so path parameters do not
// explode label cardinality.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		route := c.Route().Path
		m.requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the exposition format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
