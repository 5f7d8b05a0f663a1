package login

import (
	"context"
	"fmt"
	"time"

	"github.com/evcare/portal-gate/internal/domain/auth"
	"github.com/evcare/portal-gate/internal/domain/session"
)

// Account is one entry in the fixed login table.
type Account struct {
	// ID is the identity ID issued on login.
	ID string
	// Email is matched case-sensitively against the login email.
	Email string
	// Password is either a plaintext fixture value or an Argon2id PHC hash.
	Password string
	// Name is the display name.
	Name string
	// Phone is an optional contact number.
	Phone string
	// Role is the account's role.
	Role auth.Role
	// Avatar is an optional avatar URL.
	Avatar string
	// CreatedAt is the fixture account creation time.
	CreatedAt time.Time
}

// DefaultAccounts returns the built-in demo accounts.
func DefaultAccounts() []Account {
	return []Account{
		{
			ID:       "1",
			Email:    "admin@evcare.com",
			Password: "admin123",
			Name:     "Admin User",
			Role:     auth.RoleAdmin,
		},
		{
			ID:       "2",
			Email:    "longstaff@gmail.com",
			Password: "password",
			Name:     "Long Staff",
			Role:     auth.RoleStaff,
		},
	}
}

// FixedTableStrategy authenticates against a static list of accounts.
// Matching is case-sensitive exact equality on the email; the first matching
// account wins. Tokens are synthesized locally and carry no server state.
type FixedTableStrategy struct {
	accounts []Account
}

// NewFixedTableStrategy creates a strategy over the given accounts.
// Passing no accounts yields a table that rejects every login.
func NewFixedTableStrategy(accounts []Account) *FixedTableStrategy {
	copied := make([]Account, len(accounts))
	copy(copied, accounts)
	return &FixedTableStrategy{accounts: copied}
}

// Authenticate implements Strategy.
func (s *FixedTableStrategy) Authenticate(ctx context.Context, email, password string) (*Result, error) {
	for _, acct := range s.accounts {
		if acct.Email != email {
			continue
		}
		match, err := auth.VerifyPassword(password, acct.Password)
		if err != nil {
			return nil, fmt.Errorf("verify password for %s: %w", acct.Email, err)
		}
		if !match {
			break // one account per email; a wrong password is final
		}

		token, err := session.GenerateToken()
		if err != nil {
			return nil, err
		}
		return &Result{
			Identity: &auth.Identity{
				ID:        acct.ID,
				Name:      acct.Name,
				Email:     acct.Email,
				Phone:     acct.Phone,
				Role:      acct.Role,
				Avatar:    acct.Avatar,
				CreatedAt: acct.CreatedAt,
			},
			Token: token,
		}, nil
	}
	return nil, auth.ErrInvalidCredentials
}

// NotifyLogout implements Strategy. Fixed-table tokens have no server side,
// so there is nothing to notify.
func (s *FixedTableStrategy) NotifyLogout(ctx context.Context, token string) error {
	return nil
}

// Compile-time interface verification.
var _ Strategy = (*FixedTableStrategy)(nil)
