package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/evcare/portal-gate/internal/domain/auth"
)

// mockVault is a simple in-memory mock for testing.
type mockVault struct {
	mu      sync.Mutex
	stored  *Stored
	loadErr error
	saveErr error
	clears  int
}

func (m *mockVault) Load(ctx context.Context) (*Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.stored == nil {
		return &Stored{}, nil
	}
	copied := *m.stored
	return &copied, nil
}

func (m *mockVault) Save(ctx context.Context, s *Stored) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	copied := *s
	m.stored = &copied
	return nil
}

func (m *mockVault) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = nil
	m.clears++
	return nil
}

func testIdentity() *auth.Identity {
	return &auth.Identity{
		ID:    "1",
		Name:  "Admin User",
		Email: "admin@evcare.com",
		Role:  auth.RoleAdmin,
	}
}

func TestManager_StatusBeforeInitialize(t *testing.T) {
	m := NewManager(&mockVault{}, nil)
	snap := m.Current()
	if snap.Status != StatusInitializing {
		t.Errorf("Current().Status = %q, want %q", snap.Status, StatusInitializing)
	}
	if snap.Identity != nil {
		t.Error("Current().Identity != nil before hydration")
	}
}

func TestManager_Initialize(t *testing.T) {
	tests := []struct {
		name       string
		vault      *mockVault
		wantStatus Status
		wantClears int
	}{
		{
			name:       "empty vault hydrates to anonymous",
			vault:      &mockVault{},
			wantStatus: StatusAnonymous,
		},
		{
			name: "full credential set hydrates to authenticated",
			vault: &mockVault{stored: &Stored{
				Token:        "tok",
				RefreshToken: "ref",
				Identity:     testIdentity(),
			}},
			wantStatus: StatusAuthenticated,
		},
		{
			name:       "corrupt entry clears vault and becomes anonymous",
			vault:      &mockVault{loadErr: fmt.Errorf("decode user: %w", ErrCorruptEntry)},
			wantStatus: StatusAnonymous,
			wantClears: 1,
		},
		{
			name:       "io error becomes anonymous without clearing",
			vault:      &mockVault{loadErr: errors.New("disk on fire")},
			wantStatus: StatusAnonymous,
			wantClears: 0,
		},
		{
			name:       "token without identity clears vault",
			vault:      &mockVault{stored: &Stored{Token: "tok"}},
			wantStatus: StatusAnonymous,
			wantClears: 1,
		},
		{
			name:       "identity without token clears vault",
			vault:      &mockVault{stored: &Stored{Identity: testIdentity()}},
			wantStatus: StatusAnonymous,
			wantClears: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.vault, nil)
			if err := m.Initialize(context.Background()); err != nil {
				t.Fatalf("Initialize() error = %v", err)
			}
			snap := m.Current()
			if snap.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", snap.Status, tt.wantStatus)
			}
			if tt.vault.clears != tt.wantClears {
				t.Errorf("vault clears = %d, want %d", tt.vault.clears, tt.wantClears)
			}
		})
	}
}

func TestManager_InitializeRunsOnce(t *testing.T) {
	vault := &mockVault{stored: &Stored{Token: "tok", Identity: testIdentity()}}
	m := NewManager(vault, nil)
	_ = m.Initialize(context.Background())

	// Mutate the vault behind the manager's back; a second Initialize
	// must not re-hydrate.
	vault.mu.Lock()
	vault.stored = nil
	vault.mu.Unlock()

	_ = m.Initialize(context.Background())
	if got := m.Current().Status; got != StatusAuthenticated {
		t.Errorf("status after second Initialize = %q, want %q", got, StatusAuthenticated)
	}
}

func TestManager_Commit(t *testing.T) {
	vault := &mockVault{}
	m := NewManager(vault, nil)
	_ = m.Initialize(context.Background())
	ctx := context.Background()

	if err := m.Commit(ctx, nil, "tok", ""); !errors.Is(err, ErrIncompleteCredentials) {
		t.Errorf("Commit(nil identity) error = %v, want ErrIncompleteCredentials", err)
	}
	if err := m.Commit(ctx, testIdentity(), "", ""); !errors.Is(err, ErrIncompleteCredentials) {
		t.Errorf("Commit(empty token) error = %v, want ErrIncompleteCredentials", err)
	}

	if err := m.Commit(ctx, testIdentity(), "tok-1", "ref-1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	snap := m.Current()
	if snap.Status != StatusAuthenticated {
		t.Errorf("status = %q, want %q", snap.Status, StatusAuthenticated)
	}
	if snap.Identity == nil || snap.Identity.Email != "admin@evcare.com" {
		t.Errorf("identity = %+v, want admin@evcare.com", snap.Identity)
	}

	token, refresh := m.Credentials()
	if token != "tok-1" || refresh != "ref-1" {
		t.Errorf("Credentials() = (%q, %q), want (tok-1, ref-1)", token, refresh)
	}

	// Persisted alongside memory
	if vault.stored == nil || vault.stored.Token != "tok-1" {
		t.Errorf("vault.stored = %+v, want token tok-1", vault.stored)
	}
}

func TestManager_CommitVaultFailureLeavesSessionUntouched(t *testing.T) {
	vault := &mockVault{saveErr: errors.New("disk full")}
	m := NewManager(vault, nil)
	_ = m.Initialize(context.Background())

	err := m.Commit(context.Background(), testIdentity(), "tok", "")
	if err == nil {
		t.Fatal("Commit() error = nil, want save failure")
	}
	if got := m.Current().Status; got != StatusAnonymous {
		t.Errorf("status after failed Commit = %q, want %q", got, StatusAnonymous)
	}
}

func TestManager_Clear(t *testing.T) {
	vault := &mockVault{}
	m := NewManager(vault, nil)
	_ = m.Initialize(context.Background())
	ctx := context.Background()

	_ = m.Commit(ctx, testIdentity(), "tok", "ref")
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got := m.Current().Status; got != StatusAnonymous {
		t.Errorf("status after Clear = %q, want %q", got, StatusAnonymous)
	}
	token, refresh := m.Credentials()
	if token != "" || refresh != "" {
		t.Errorf("Credentials() after Clear = (%q, %q), want empty", token, refresh)
	}

	// Idempotent
	if err := m.Clear(ctx); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

func TestManager_Subscribe(t *testing.T) {
	m := NewManager(&mockVault{}, nil)
	ctx := context.Background()

	var got []Status
	unsubscribe := m.Subscribe(func(s Snapshot) {
		got = append(got, s.Status)
	})

	_ = m.Initialize(ctx)
	_ = m.Commit(ctx, testIdentity(), "tok", "")
	_ = m.Clear(ctx)

	want := []Status{StatusAnonymous, StatusAuthenticated, StatusAnonymous}
	if len(got) != len(want) {
		t.Fatalf("subscriber called %d times, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	unsubscribe()
	_ = m.Commit(ctx, testIdentity(), "tok-2", "")
	if len(got) != len(want) {
		t.Errorf("subscriber called after unsubscribe, got %d notifications", len(got))
	}
}

func TestManager_SnapshotIsolation(t *testing.T) {
	m := NewManager(&mockVault{}, nil)
	ctx := context.Background()
	_ = m.Initialize(ctx)
	_ = m.Commit(ctx, testIdentity(), "tok", "")

	snap := m.Current()
	snap.Identity.Name = "mutated"

	if got := m.Current().Identity.Name; got != "Admin User" {
		t.Errorf("snapshot mutation leaked into manager: Name = %q", got)
	}
}

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}
		if seen[tok] {
			t.Fatalf("GenerateToken() produced duplicate: %s", tok)
		}
		seen[tok] = true

		parts := strings.SplitN(tok, ".", 2)
		if len(parts) != 2 || len(parts[0]) != 64 {
			t.Fatalf("GenerateToken() = %q, want 64 hex chars + timestamp suffix", tok)
		}
	}
}
