// Package audit contains domain types for the authentication audit trail.
package audit

import "time"

// EventType constants for audit records.
const (
	// EventTypeLogin is a successful login.
	EventTypeLogin = "access.login"
	// EventTypeLoginFailed is a rejected login attempt.
	EventTypeLoginFailed = "access.login_failed"
	// EventTypeLogout is an explicit logout.
	EventTypeLogout = "access.logout"
	// EventTypeSessionClear is a session wipe outside of logout, such as a
	// corrupt vault entry being discarded during hydration.
	EventTypeSessionClear = "access.session_clear"
	// EventTypeRateLimited is a login attempt rejected by the rate limiter.
	EventTypeRateLimited = "access.rate_limited"
)

// Record represents a single auditable authentication event.
type Record struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// EventType categorizes the event (access.*).
	EventType string `json:"event_type"`
	// Email is the login email involved, when known.
	Email string `json:"email,omitempty"`
	// IdentityID of the affected user, when known.
	IdentityID string `json:"identity_id,omitempty"`
	// Role of the affected user, when known.
	Role string `json:"role,omitempty"`
	// SourceIP is the client address the event came from.
	SourceIP string `json:"source_ip,omitempty"`
	// RequestID is for correlation across systems.
	RequestID string `json:"request_id,omitempty"`
	// Reason explains the event, e.g. why a login failed.
	Reason string `json:"reason,omitempty"`
}
