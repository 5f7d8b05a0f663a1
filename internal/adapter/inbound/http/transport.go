package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evcare/portal-gate/internal/domain/ratelimit"
	"github.com/evcare/portal-gate/internal/domain/session"
	"github.com/evcare/portal-gate/internal/service"
)

const (
	defaultAddr       = "localhost:8443"
	shutdownTimeout   = 10 * time.Second
	metricsSyncPeriod = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Transport is the HTTP front of the portal gate. It exposes the auth
// endpoints, the route guard for every page path, and the operational
// endpoints.
type Transport struct {
	addr           string
	logger         *slog.Logger
	allowedOrigins []string
	version        string

	auths  *service.AuthService
	routes *service.RouteService
	audits *service.AuditService

	limiter  ratelimit.Limiter
	limitCfg ratelimit.Config

	upstreamURL *url.URL
	profile     ProfileFetcher
	tracing     bool

	server  *http.Server
	metrics *Metrics
}

// Option configures the Transport.
type Option func(*Transport)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(t *Transport) {
		t.addr = addr
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithAllowedOrigins sets the cross-origin allowlist for browser requests.
func WithAllowedOrigins(origins []string) Option {
	return func(t *Transport) {
		t.allowedOrigins = origins
	}
}

// WithRateLimiter enables login rate limiting.
func WithRateLimiter(limiter ratelimit.Limiter, cfg ratelimit.Config) Option {
	return func(t *Transport) {
		t.limiter = limiter
		t.limitCfg = cfg
	}
}

// WithAuditService wires the audit pipeline into health and metrics.
func WithAuditService(audits *service.AuditService) Option {
	return func(t *Transport) {
		t.audits = audits
	}
}

// WithUpstream sets the frontend origin that permitted page requests are
// proxied to.
func WithUpstream(u *url.URL) Option {
	return func(t *Transport) {
		t.upstreamURL = u
	}
}

// WithProfileFetcher enables the profile passthrough endpoint.
func WithProfileFetcher(profile ProfileFetcher) Option {
	return func(t *Transport) {
		t.profile = profile
	}
}

// WithTracing enables the OpenTelemetry span middleware. Only useful when a
// tracer provider has been installed globally.
func WithTracing() Option {
	return func(t *Transport) {
		t.tracing = true
	}
}

// WithVersion sets the version string reported by the health endpoint.
func WithVersion(version string) Option {
	return func(t *Transport) {
		t.version = version
	}
}

// NewTransport creates the HTTP transport for the given services.
func NewTransport(auths *service.AuthService, routes *service.RouteService, opts ...Option) *Transport {
	t := &Transport{
		addr:   defaultAddr,
		logger: slog.Default(),
		auths:  auths,
		routes: routes,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Handler builds the full middleware-wrapped handler. Each call registers a
// fresh metrics registry, so build it once per transport.
func (t *Transport) Handler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(registry)
	if t.auths.Current().Status == session.StatusAuthenticated {
		t.metrics.SessionAuthenticated.Set(1)
	}

	keys, _ := t.limiter.(keyCounter)
	health := NewHealthChecker(t.auths, keys, t.audits, t.version)
	handlers := NewAuthHandlers(t.auths, t.limiter, t.limitCfg, t.metrics, t.profile, t.logger)
	guard := NewGuard(t.routes, t.auths, t.metrics, t.upstreamURL, t.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", handlers.HandleLogin)
	mux.HandleFunc("POST /auth/logout", handlers.HandleLogout)
	mux.HandleFunc("GET /auth/session", handlers.HandleSession)
	mux.HandleFunc("GET /auth/profile", handlers.HandleProfile)
	mux.HandleFunc("GET /healthz", health.Handler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("/", guard)

	var handler http.Handler = mux
	handler = OriginCheck(t.allowedOrigins)(handler)
	handler = RealIPMiddleware(handler)
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)
	if t.tracing {
		handler = TracingMiddleware(handler)
	}
	return handler
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully. It blocks.
func (t *Transport) Start(ctx context.Context) error {
	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	keys, _ := t.limiter.(keyCounter)
	go t.syncGauges(ctx, keys)

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("http transport listening", "addr", t.addr)
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := t.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	t.logger.Info("http transport stopped")
	return nil
}

// syncGauges periodically pushes sampled values into Prometheus. The audit
// drop counter is monotonic on the service side, so only the delta since the
// last sample is added.
func (t *Transport) syncGauges(ctx context.Context, keys keyCounter) {
	ticker := time.NewTicker(metricsSyncPeriod)
	defer ticker.Stop()

	var lastDrops int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if keys != nil {
				t.metrics.RateLimitKeys.Set(float64(keys.Size()))
			}
			if t.audits != nil {
				drops := t.audits.DroppedRecords()
				if delta := drops - lastDrops; delta > 0 {
					t.metrics.AuditDropsTotal.Add(float64(delta))
				}
				lastDrops = drops
			}
		}
	}
}
