package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/evcare/portal-gate/internal/adapter/outbound/cel"
	"github.com/evcare/portal-gate/internal/adapter/outbound/memory"
	"github.com/evcare/portal-gate/internal/domain/login"
	"github.com/evcare/portal-gate/internal/domain/route"
	"github.com/evcare/portal-gate/internal/domain/session"
	"github.com/evcare/portal-gate/internal/service"
)

func newRouteService(t *testing.T) *service.RouteService {
	t.Helper()
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	svc, err := service.NewRouteService(route.DefaultTable(), evaluator, testLogger())
	if err != nil {
		t.Fatalf("NewRouteService() error: %v", err)
	}
	return svc
}

func loginAs(t *testing.T, auths *service.AuthService, email, password string) {
	t.Helper()
	if _, err := auths.Login(context.Background(), email, password, "", service.RequestMeta{}); err != nil {
		t.Fatalf("Login(%s) error: %v", email, err)
	}
}

func TestGuard_AnonymousRedirectedToLogin(t *testing.T) {
	guard := NewGuard(newRouteService(t), newAuthService(t), nil, nil, testLogger())

	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staff", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/login" {
		t.Errorf("Location = %q, want /login", got)
	}
}

func TestGuard_StaffRendersOwnArea(t *testing.T) {
	auths := newAuthService(t)
	loginAs(t, auths, "longstaff@gmail.com", "password")
	guard := NewGuard(newRouteService(t), auths, nil, nil, testLogger())

	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staff/schedule", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "longstaff@gmail.com") {
		t.Errorf("placeholder body %s missing signed-in email", rec.Body)
	}
}

func TestGuard_StaffBouncedOffAdmin(t *testing.T) {
	auths := newAuthService(t)
	loginAs(t, auths, "longstaff@gmail.com", "password")
	guard := NewGuard(newRouteService(t), auths, nil, nil, testLogger())

	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/staff" {
		t.Errorf("Location = %q, want role home /staff", got)
	}
}

func TestGuard_WaitsWhileSessionHydrates(t *testing.T) {
	// Manager never initialized, so the session stays in initializing state.
	manager := session.NewManager(memory.NewVault(), testLogger())
	strategy := login.NewFixedTableStrategy(nil)
	auths := service.NewAuthService(manager, strategy, nil, testLogger())
	guard := NewGuard(newRouteService(t), auths, nil, nil, testLogger())

	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staff", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
}

func TestGuard_ProxiesRenderToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("frontend:" + r.URL.Path))
	}))
	defer upstream.Close()

	upstreamURL, err := url.Parse(upstream.URL)
	if err != nil {
		t.Fatalf("parse upstream URL: %v", err)
	}

	auths := newAuthService(t)
	loginAs(t, auths, "longstaff@gmail.com", "password")
	guard := NewGuard(newRouteService(t), auths, nil, upstreamURL, testLogger())

	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staff/schedule", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "frontend:/staff/schedule" {
		t.Errorf("proxied body = %q, want frontend:/staff/schedule", got)
	}
}

func TestGuard_UpstreamDownIsBadGateway(t *testing.T) {
	upstreamURL, _ := url.Parse("http://127.0.0.1:1") // nothing listens here
	auths := newAuthService(t)
	loginAs(t, auths, "longstaff@gmail.com", "password")
	guard := NewGuard(newRouteService(t), auths, nil, upstreamURL, testLogger())

	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staff", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}
