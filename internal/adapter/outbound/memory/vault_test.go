package memory

import (
	"context"
	"testing"
	"time"

	"github.com/evcare/portal-gate/internal/domain/auth"
	"github.com/evcare/portal-gate/internal/domain/session"
)

func vaultTestStored() *session.Stored {
	return &session.Stored{
		Token:        "tok.1700000000",
		RefreshToken: "refresh",
		Identity: &auth.Identity{
			ID:    "1",
			Name:  "Admin User",
			Email: "admin@evcare.com",
			Role:  auth.RoleAdmin,
		},
		UpdatedAt: time.Now().UTC(),
	}
}

func TestVault_LoadEmpty(t *testing.T) {
	t.Parallel()

	vault := NewVault()

	stored, err := vault.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !stored.Empty() {
		t.Errorf("Load() on fresh vault = %+v, want empty", stored)
	}
}

func TestVault_SaveLoad(t *testing.T) {
	t.Parallel()

	vault := NewVault()
	ctx := context.Background()

	want := vaultTestStored()
	if err := vault.Save(ctx, want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := vault.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Token != want.Token {
		t.Errorf("Token = %q, want %q", got.Token, want.Token)
	}
	if got.RefreshToken != want.RefreshToken {
		t.Errorf("RefreshToken = %q, want %q", got.RefreshToken, want.RefreshToken)
	}
	if got.Identity == nil || got.Identity.Email != want.Identity.Email {
		t.Errorf("Identity = %+v, want %+v", got.Identity, want.Identity)
	}
}

func TestVault_Clear(t *testing.T) {
	t.Parallel()

	vault := NewVault()
	ctx := context.Background()

	if err := vault.Save(ctx, vaultTestStored()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := vault.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	stored, err := vault.Load(ctx)
	if err != nil {
		t.Fatalf("Load() after Clear error: %v", err)
	}
	if !stored.Empty() {
		t.Errorf("Load() after Clear = %+v, want empty", stored)
	}

	// Clearing again is a no-op
	if err := vault.Clear(ctx); err != nil {
		t.Errorf("second Clear() error: %v", err)
	}
}

func TestVault_CopiesOnSaveAndLoad(t *testing.T) {
	t.Parallel()

	vault := NewVault()
	ctx := context.Background()

	original := vaultTestStored()
	if err := vault.Save(ctx, original); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	// Mutating the caller's copy must not affect the vault
	original.Identity.Email = "tampered@evcare.com"
	original.Token = "tampered"

	first, err := vault.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if first.Identity.Email != "admin@evcare.com" {
		t.Errorf("vault picked up caller mutation: Email = %q", first.Identity.Email)
	}

	// Mutating a loaded copy must not affect later loads
	first.Identity.Email = "also-tampered@evcare.com"

	second, err := vault.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if second.Identity.Email != "admin@evcare.com" {
		t.Errorf("vault picked up loaded-copy mutation: Email = %q", second.Identity.Email)
	}
}
