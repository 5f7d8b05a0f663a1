// Package integration provides end-to-end tests that verify the gate's
// behavior across multiple components working together.
package integration

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/evcare/portal-gate/internal/adapter/outbound/state"
	"github.com/evcare/portal-gate/internal/domain/login"
	"github.com/evcare/portal-gate/internal/domain/session"
	"github.com/evcare/portal-gate/internal/service"
)

// testLogger returns a logger that writes to stderr at error level (quiet tests).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newAuthService(t *testing.T, vault session.Vault) *service.AuthService {
	t.Helper()
	manager := session.NewManager(vault, testLogger())
	if err := manager.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	strategy := login.NewFixedTableStrategy(login.DefaultAccounts())
	return service.NewAuthService(manager, strategy, nil, testLogger())
}

// TestBootEmptyState verifies that booting with no existing session file
// hydrates to an anonymous session without creating the file.
func TestBootEmptyState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "session.json")
	vault := state.NewFileVault(statePath, testLogger())

	auths := newAuthService(t, vault)

	snap := auths.Current()
	if snap.Status != session.StatusAnonymous {
		t.Errorf("Status = %q, want anonymous", snap.Status)
	}
	if snap.Identity != nil {
		t.Errorf("Identity = %+v, want nil", snap.Identity)
	}
	if vault.Exists() {
		t.Error("hydration alone must not create the session file")
	}
}

// TestLoginSurvivesRestart verifies the full persistence loop: login against
// one process, then boot a fresh manager over the same file and find the
// session authenticated.
func TestLoginSurvivesRestart(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	first := newAuthService(t, state.NewFileVault(statePath, testLogger()))
	snap, err := first.Login(ctx, "longstaff@gmail.com", "password", "", service.RequestMeta{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if snap.Status != session.StatusAuthenticated {
		t.Fatalf("Status after login = %q, want authenticated", snap.Status)
	}
	token := first.Token()
	if token == "" {
		t.Fatal("expected a credential token after login")
	}

	// Simulate a restart: a fresh vault and manager over the same file.
	second := newAuthService(t, state.NewFileVault(statePath, testLogger()))
	snap = second.Current()
	if snap.Status != session.StatusAuthenticated {
		t.Fatalf("Status after restart = %q, want authenticated", snap.Status)
	}
	if snap.Identity == nil || snap.Identity.Email != "longstaff@gmail.com" {
		t.Errorf("Identity after restart = %+v", snap.Identity)
	}
	if second.Token() != token {
		t.Error("token changed across restart")
	}
}

// TestCorruptStateFileRecovered verifies that a mangled session file is
// discarded during hydration and the gate boots anonymous.
func TestCorruptStateFileRecovered(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(statePath, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	auths := newAuthService(t, state.NewFileVault(statePath, testLogger()))

	snap := auths.Current()
	if snap.Status != session.StatusAnonymous {
		t.Errorf("Status = %q, want anonymous after corrupt file", snap.Status)
	}

	// A subsequent login must work normally.
	snap, err := auths.Login(context.Background(), "admin@evcare.com", "admin123", "", service.RequestMeta{})
	if err != nil {
		t.Fatalf("Login after recovery: %v", err)
	}
	if snap.Status != session.StatusAuthenticated {
		t.Errorf("Status = %q, want authenticated", snap.Status)
	}
}

// TestLogoutClearsPersistedState verifies logout removes the stored session
// so a restart boots anonymous.
func TestLogoutClearsPersistedState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	auths := newAuthService(t, state.NewFileVault(statePath, testLogger()))
	if _, err := auths.Login(ctx, "longstaff@gmail.com", "password", "", service.RequestMeta{}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := auths.Logout(ctx, service.RequestMeta{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	restarted := newAuthService(t, state.NewFileVault(statePath, testLogger()))
	if restarted.Current().Status != session.StatusAnonymous {
		t.Errorf("Status after logout and restart = %q, want anonymous", restarted.Current().Status)
	}
}
