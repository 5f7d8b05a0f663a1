package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/evcare/portal-gate/internal/adapter/outbound/memory"
	"github.com/evcare/portal-gate/internal/domain/ratelimit"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	limiter := memory.NewRateLimiter()
	t.Cleanup(limiter.Stop)

	tr := NewTransport(newAuthService(t), newRouteService(t),
		WithLogger(testLogger()),
		WithRateLimiter(limiter, ratelimit.Config{Rate: 100, Burst: 100, Period: time.Minute}),
		WithVersion("test"),
	)
	return tr.Handler()
}

func TestTransport_Endpoints(t *testing.T) {
	handler := newTestHandler(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/healthz", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"favicon", http.MethodGet, "/favicon.ico", http.StatusNoContent},
		{"session", http.MethodGet, "/auth/session", http.StatusOK},
		{"guarded page anonymous", http.MethodGet, "/admin", http.StatusFound},
		{"landing page", http.MethodGet, "/", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestTransport_LoginThenGuardedPage(t *testing.T) {
	handler := newTestHandler(t)

	login := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"longstaff@gmail.com","password":"password"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, login)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200, body %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing on login response")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staff", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("staff page status = %d, want 200", rec.Code)
	}

	// The admin subtree stays out of reach for staff.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("admin page status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/staff" {
		t.Errorf("Location = %q, want /staff", got)
	}
}

func TestTransport_MetricsExposition(t *testing.T) {
	handler := newTestHandler(t)

	// Generate one request so counters exist.
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, metric := range []string{"portalgate_requests_total", "portalgate_route_decisions_total", "go_goroutines"} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics exposition missing %s", metric)
		}
	}
}
