// Package login defines the authentication strategy contract and the
// fixed-table strategy used for demo deployments.
package login

import (
	"context"

	"github.com/evcare/portal-gate/internal/domain/auth"
)

// Result is a successful authentication: the normalized identity plus the
// credential tokens to commit into the session.
type Result struct {
	// Identity is the authenticated user.
	Identity *auth.Identity
	// Token is the credential token.
	Token string
	// RefreshToken is optional; empty when the strategy does not issue one.
	RefreshToken string
}

// Strategy authenticates an email/password pair.
// Implementations: fixed account table, remote EVCare backend.
type Strategy interface {
	// Authenticate verifies the credentials and returns a Result.
	// Returns auth.ErrInvalidCredentials (wrapped) when the pair is
	// rejected and auth.ErrServiceUnavailable (wrapped) when the strategy
	// could not reach its backing service.
	Authenticate(ctx context.Context, email, password string) (*Result, error)

	// NotifyLogout tells the backing service the session ended. Best
	// effort: callers log failures and proceed with the local logout.
	NotifyLogout(ctx context.Context, token string) error
}
