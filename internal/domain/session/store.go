package session

import (
	"context"
	"errors"
)

// Vault persists the session under three logical entries: the credential
// token, the refresh token, and the identity record.
// This interface is defined in the domain to avoid circular imports.
// Implementations: file (prod), memory (test/dev), sqlite, redis.
type Vault interface {
	// Load reads the stored session. A vault with no entries returns an
	// empty Stored value, not an error.
	// Returns an error wrapping ErrCorruptEntry when a stored entry cannot
	// be decoded.
	Load(ctx context.Context) (*Stored, error)

	// Save writes all entries atomically with respect to Load.
	Save(ctx context.Context, s *Stored) error

	// Clear removes all entries. Clearing an empty vault is not an error.
	Clear(ctx context.Context) error
}

// ErrCorruptEntry is returned (wrapped) by Vault.Load when a persisted entry
// exists but cannot be decoded. The Manager recovers by clearing the vault.
var ErrCorruptEntry = errors.New("corrupt session entry")
