package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evcare/portal-gate/internal/domain/audit"
	"github.com/evcare/portal-gate/internal/service"
)

type noopStore struct{}

func (noopStore) Append(ctx context.Context, records ...audit.Record) error { return nil }
func (noopStore) Flush(ctx context.Context) error                           { return nil }
func (noopStore) Close() error                                              { return nil }

func TestHealthChecker_Healthy(t *testing.T) {
	checker := NewHealthChecker(newAuthService(t), nil, nil, "1.2.3")

	rec := httptest.NewRecorder()
	checker.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", resp.Version)
	}
	if resp.Checks["session"] != "anonymous" {
		t.Errorf("session check = %q, want anonymous", resp.Checks["session"])
	}
}

func TestHealthChecker_UnhealthyWhenAuditBacklogged(t *testing.T) {
	// Worker never started, so the channel fills and stays full.
	audits := service.NewAuditService(noopStore{}, testLogger(),
		service.WithChannelSize(10),
		service.WithSendTimeout(0),
	)
	for i := 0; i < 10; i++ {
		audits.Record(audit.Record{EventType: audit.EventTypeLogin})
	}

	checker := NewHealthChecker(nil, nil, audits, "")

	rec := httptest.NewRecorder()
	checker.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", resp.Status)
	}
}
