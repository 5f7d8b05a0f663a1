// Package state provides file-based persistence for the portal session.
//
// The session.json file stores the credential tokens and the signed-in user.
// This package provides atomic writes, file locking, and backup functionality.
package state

import (
	"encoding/json"
	"time"
)

// sessionEntry is the on-disk structure persisted in session.json.
//
// User is kept as raw JSON so an entry written by a newer build with extra
// identity fields still round-trips through an older one.
type sessionEntry struct {
	// Version is the schema version for forward compatibility. Currently "1".
	Version string `json:"version"`

	// Token is the credential token, empty when signed out.
	Token string `json:"token,omitempty"`

	// RefreshToken accompanies Token when the login strategy issues one.
	RefreshToken string `json:"refreshToken,omitempty"`

	// User is the signed-in identity as JSON, null when signed out.
	User json.RawMessage `json:"user,omitempty"`

	// UpdatedAt is when this entry was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}
