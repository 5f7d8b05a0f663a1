// Package session holds the single portal session and its persistence contract.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/evcare/portal-gate/internal/domain/auth"
)

// Status is the derived authentication state of the session.
type Status string

const (
	// StatusInitializing means hydration from the vault has not completed yet.
	StatusInitializing Status = "initializing"
	// StatusAnonymous means no identity is present.
	StatusAnonymous Status = "anonymous"
	// StatusAuthenticated means both identity and credential token are present.
	StatusAuthenticated Status = "authenticated"
)

// Snapshot is an immutable view of the session, safe to hand to subscribers.
type Snapshot struct {
	// Identity is the authenticated user, nil when anonymous or initializing.
	Identity *auth.Identity
	// Status is the derived state at the time of the snapshot.
	Status Status
}

// Role returns the snapshot's role, or the empty role when unauthenticated.
func (s Snapshot) Role() auth.Role {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Role
}

// Stored is the persisted shape of the session. Identity presence and a
// non-empty Token always go together; a Stored value with one but not the
// other is rejected by the Manager.
type Stored struct {
	// Token is the credential token.
	Token string
	// RefreshToken is the optional refresh token.
	RefreshToken string
	// Identity is the persisted user record.
	Identity *auth.Identity
	// UpdatedAt is when the record was last written (UTC).
	UpdatedAt time.Time
}

// Empty reports whether the stored session carries no credentials at all.
func (s *Stored) Empty() bool {
	return s == nil || (s.Token == "" && s.Identity == nil)
}

// GenerateToken creates an opaque credential token for fixed-table logins:
// 32 random bytes hex-encoded, suffixed with the issue time in Unix seconds.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return fmt.Sprintf("%s.%d", hex.EncodeToString(b), time.Now().Unix()), nil
}
