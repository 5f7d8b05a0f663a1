package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the portal gate.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	LoginsTotal          *prometheus.CounterVec
	RouteDecisions       *prometheus.CounterVec
	SessionAuthenticated prometheus.Gauge
	AuditDropsTotal      prometheus.Counter
	RateLimitKeys        prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "portalgate",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "portalgate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		LoginsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "portalgate",
				Name:      "logins_total",
				Help:      "Total login attempts by outcome",
			},
			[]string{"result"}, // success/invalid/unavailable/rate_limited/conflict
		),
		RouteDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "portalgate",
				Name:      "route_decisions_total",
				Help:      "Total route decisions by action",
			},
			[]string{"action"}, // wait/render/redirect
		),
		SessionAuthenticated: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "portalgate",
				Name:      "session_authenticated",
				Help:      "1 when a user is signed in, 0 otherwise",
			},
		),
		AuditDropsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "portalgate",
				Name:      "audit_drops_total",
				Help:      "Total audit records dropped due to backpressure",
			},
		),
		RateLimitKeys: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "portalgate",
				Name:      "rate_limit_keys",
				Help:      "Number of active rate limit keys",
			},
		),
	}
}
