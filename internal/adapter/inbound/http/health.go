package http

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"

	"github.com/evcare/portal-gate/internal/domain/session"
	"github.com/evcare/portal-gate/internal/service"
)

// HealthResponse is the JSON body returned by the health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// keyCounter reports how many keys a rate limiter currently tracks.
type keyCounter interface {
	Size() int
}

// sessionSource reports the current session snapshot.
type sessionSource interface {
	Current() session.Snapshot
}

// HealthChecker reports liveness of the portal's moving parts. The audit
// pipeline is the only check that can flip the whole response to unhealthy:
// a channel above 90% capacity means records are about to drop.
type HealthChecker struct {
	sessions    sessionSource
	rateLimiter keyCounter
	audits      *service.AuditService
	version     string
}

// NewHealthChecker creates a health checker. Any dependency may be nil, in
// which case its check is skipped.
func NewHealthChecker(sessions sessionSource, rateLimiter keyCounter, audits *service.AuditService, version string) *HealthChecker {
	return &HealthChecker{
		sessions:    sessions,
		rateLimiter: rateLimiter,
		audits:      audits,
		version:     version,
	}
}

// Handler returns an http.HandlerFunc serving the health endpoint.
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "healthy",
			Checks:  make(map[string]string),
			Version: h.version,
		}

		if h.sessions != nil {
			resp.Checks["session"] = string(h.sessions.Current().Status)
		}

		if h.rateLimiter != nil {
			resp.Checks["rate_limit_keys"] = strconv.Itoa(h.rateLimiter.Size())
		}

		if h.audits != nil {
			depth := h.audits.ChannelDepth()
			capacity := h.audits.ChannelCapacity()
			resp.Checks["audit_depth"] = strconv.Itoa(depth)
			resp.Checks["audit_capacity"] = strconv.Itoa(capacity)
			resp.Checks["audit_drops"] = strconv.FormatInt(h.audits.DroppedRecords(), 10)
			if capacity > 0 && depth*10 > capacity*9 {
				resp.Status = "unhealthy"
				resp.Checks["audit"] = "channel above 90% capacity"
			}
		}

		resp.Checks["goroutines"] = strconv.Itoa(runtime.NumGoroutine())

		status := http.StatusOK
		if resp.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
