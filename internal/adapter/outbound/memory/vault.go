package memory

import (
	"context"
	"sync"

	"github.com/evcare/portal-gate/internal/domain/session"
)

// Vault implements session.Vault with an in-memory record.
// Thread-safe for concurrent access. Nothing survives a restart, so this is
// for development and testing only.
type Vault struct {
	mu     sync.RWMutex
	stored *session.Stored
}

// NewVault creates a new empty in-memory vault.
func NewVault() *Vault {
	return &Vault{}
}

// Load returns the stored session, or an empty Stored when nothing has been
// saved yet.
func (v *Vault) Load(ctx context.Context) (*session.Stored, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.stored == nil {
		return &session.Stored{}, nil
	}
	return copyStored(v.stored), nil
}

// Save replaces the stored session.
func (v *Vault) Save(ctx context.Context, stored *session.Stored) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.stored = copyStored(stored)
	return nil
}

// Clear removes the stored session. Clearing an empty vault is a no-op.
func (v *Vault) Clear(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.stored = nil
	return nil
}

// copyStored creates a deep copy so callers cannot mutate the vault's record.
func copyStored(stored *session.Stored) *session.Stored {
	out := &session.Stored{
		Token:        stored.Token,
		RefreshToken: stored.RefreshToken,
		UpdatedAt:    stored.UpdatedAt,
	}
	if stored.Identity != nil {
		identity := *stored.Identity
		out.Identity = &identity
	}
	return out
}

// Compile-time interface verification.
var _ session.Vault = (*Vault)(nil)
