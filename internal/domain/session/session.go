package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evcare/portal-gate/internal/domain/auth"
)

// ErrIncompleteCredentials is returned by Commit when the identity and the
// credential token are not both present.
var ErrIncompleteCredentials = errors.New("identity and token must both be present")

// Subscriber receives a snapshot after every committed session mutation.
type Subscriber func(Snapshot)

// Manager is the single source of truth for the portal session. All mutations
// go through it; memory and vault are updated together under one lock, so a
// reachable state never has an identity without a token or vice versa.
type Manager struct {
	vault  Vault
	logger *slog.Logger

	mu           sync.Mutex
	identity     *auth.Identity
	token        string
	refreshToken string
	hydrated     bool

	initOnce sync.Once

	subMu   sync.Mutex
	subs    map[int]Subscriber
	nextSub int
}

// NewManager creates a Manager backed by the given vault.
func NewManager(vault Vault, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		vault:  vault,
		logger: logger,
		subs:   make(map[int]Subscriber),
	}
}

// Initialize hydrates the session from the vault. It runs its work at most
// once; later calls return immediately. A corrupt vault entry is not fatal:
// the entries are cleared and the session becomes anonymous.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.hydrate(ctx)
	})
	return nil
}

func (m *Manager) hydrate(ctx context.Context) {
	stored, err := m.vault.Load(ctx)

	m.mu.Lock()
	defer func() {
		m.hydrated = true
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
	}()

	switch {
	case err != nil && errors.Is(err, ErrCorruptEntry):
		m.logger.Warn("session vault entry corrupt, clearing", "error", err)
		if clearErr := m.vault.Clear(ctx); clearErr != nil {
			m.logger.Error("failed to clear corrupt session vault", "error", clearErr)
		}
		return

	case err != nil:
		m.logger.Warn("session hydration failed, starting anonymous", "error", err)
		return

	case stored.Empty():
		return

	case stored.Identity == nil || stored.Token == "":
		// Half a credential set is as unusable as a corrupt one.
		m.logger.Warn("session vault holds partial credentials, clearing")
		if clearErr := m.vault.Clear(ctx); clearErr != nil {
			m.logger.Error("failed to clear partial session vault", "error", clearErr)
		}
		return
	}

	m.identity = stored.Identity
	m.token = stored.Token
	m.refreshToken = stored.RefreshToken
	m.logger.Info("session hydrated",
		"identity_id", stored.Identity.ID,
		"role", stored.Identity.Role,
	)
}

// Commit atomically replaces the session with a full credential set and
// persists it. The refresh token may be empty.
func (m *Manager) Commit(ctx context.Context, identity *auth.Identity, token, refreshToken string) error {
	if identity == nil || token == "" {
		return ErrIncompleteCredentials
	}

	m.mu.Lock()
	if err := m.vault.Save(ctx, &Stored{
		Token:        token,
		RefreshToken: refreshToken,
		Identity:     identity,
		UpdatedAt:    time.Now().UTC(),
	}); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("persist session: %w", err)
	}

	m.identity = identity
	m.token = token
	m.refreshToken = refreshToken
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
	return nil
}

// Clear unconditionally removes the session from memory and the vault.
// Clearing an already-anonymous session is a no-op that still succeeds.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	if err := m.vault.Clear(ctx); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("clear session vault: %w", err)
	}

	m.identity = nil
	m.token = ""
	m.refreshToken = ""
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
	return nil
}

// Current returns a synchronous snapshot of the session.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Credentials returns the current token pair. Both are empty when anonymous.
func (m *Manager) Credentials() (token, refreshToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.refreshToken
}

// Subscribe registers fn to be called with the new snapshot after every
// committed mutation. The returned function removes the subscription.
func (m *Manager) Subscribe(fn Subscriber) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// snapshotLocked builds a Snapshot. Caller must hold mu.
func (m *Manager) snapshotLocked() Snapshot {
	status := StatusAnonymous
	if !m.hydrated {
		status = StatusInitializing
	} else if m.identity != nil && m.token != "" {
		status = StatusAuthenticated
	}

	var identity *auth.Identity
	if m.identity != nil {
		copied := *m.identity
		identity = &copied
	}
	return Snapshot{Identity: identity, Status: status}
}

// notify delivers the snapshot to every subscriber. Subscribers run on the
// mutating goroutine, after the state change is fully visible.
func (m *Manager) notify(snap Snapshot) {
	m.subMu.Lock()
	subs := make([]Subscriber, 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
