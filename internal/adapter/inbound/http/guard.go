package http

import (
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/evcare/portal-gate/internal/domain/route"
	"github.com/evcare/portal-gate/internal/service"
)

// Guard gates every page request through the route table before it reaches
// the portal frontend. Decisions come from the route service; the guard only
// translates them to HTTP.
type Guard struct {
	routes   *service.RouteService
	auths    *service.AuthService
	metrics  *Metrics
	upstream *httputil.ReverseProxy
	logger   *slog.Logger
}

// NewGuard creates a Guard. upstream may be nil, in which case permitted
// pages get a plain placeholder instead of being proxied to the frontend.
func NewGuard(routes *service.RouteService, auths *service.AuthService, metrics *Metrics, upstream *url.URL, logger *slog.Logger) *Guard {
	g := &Guard{
		routes:  routes,
		auths:   auths,
		metrics: metrics,
		logger:  logger,
	}
	if upstream != nil {
		proxy := httputil.NewSingleHostReverseProxy(upstream)
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream proxy error", "error", err, "path", r.URL.Path)
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		}
		g.upstream = proxy
	}
	return g
}

// ServeHTTP implements http.Handler for all page routes.
func (g *Guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := g.auths.Current()
	decision := g.routes.Decide(r.URL.Path, snapshot)

	if g.metrics != nil {
		g.metrics.RouteDecisions.WithLabelValues(string(decision.Action)).Inc()
	}

	switch decision.Action {
	case route.ActionWait:
		// Session is still hydrating. Tell the client to come back.
		w.Header().Set("Retry-After", "1")
		http.Error(w, "session initializing", http.StatusServiceUnavailable)

	case route.ActionRedirect:
		http.Redirect(w, r, decision.Target, http.StatusFound)

	case route.ActionRender:
		g.render(w, r)

	default:
		g.logger.Error("unknown route action", "action", decision.Action, "path", r.URL.Path)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (g *Guard) render(w http.ResponseWriter, r *http.Request) {
	if g.upstream != nil {
		g.upstream.ServeHTTP(w, r)
		return
	}

	// Placeholder for deployments without a frontend upstream, mainly dev
	// mode and tests.
	snapshot := g.auths.Current()
	who := "anonymous"
	if snapshot.Identity != nil {
		who = snapshot.Identity.Email
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html><html><body><h1>%s</h1><p>signed in as %s</p></body></html>",
		html.EscapeString(r.URL.Path), html.EscapeString(who))
}
