package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/evcare/portal-gate/internal/domain/audit"
	"github.com/evcare/portal-gate/internal/domain/auth"
	"github.com/evcare/portal-gate/internal/domain/login"
	"github.com/evcare/portal-gate/internal/domain/session"
)

// ErrLoginInFlight is returned when a login is attempted while another login
// is still being processed. The session holds one user; concurrent logins
// would race on it.
var ErrLoginInFlight = errors.New("another login is in progress")

// RequestMeta carries request correlation data into audit records.
type RequestMeta struct {
	SourceIP  string
	RequestID string
}

// AuthService drives the login and logout flows: it runs the configured
// strategy, commits the result into the session manager, and records the
// audit trail.
type AuthService struct {
	manager  *session.Manager
	strategy login.Strategy
	audits   *AuditService
	logger   *slog.Logger
	inFlight atomic.Bool
}

// NewAuthService creates an AuthService. audits may be nil when auditing is
// disabled.
func NewAuthService(manager *session.Manager, strategy login.Strategy, audits *AuditService, logger *slog.Logger) *AuthService {
	return &AuthService{
		manager:  manager,
		strategy: strategy,
		audits:   audits,
		logger:   logger,
	}
}

// Login authenticates the credentials and commits the resulting session.
// expectedRole, when non-empty, rejects an otherwise valid login whose
// account has a different role; the caller sees invalid credentials so the
// response does not leak which part was wrong.
//
// Only one login may be in flight at a time; concurrent calls get
// ErrLoginInFlight.
func (s *AuthService) Login(ctx context.Context, email, password string, expectedRole auth.Role, meta RequestMeta) (session.Snapshot, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return session.Snapshot{}, ErrLoginInFlight
	}
	defer s.inFlight.Store(false)

	result, err := s.strategy.Authenticate(ctx, email, password)
	if err != nil {
		s.recordLoginFailure(email, meta, err)
		return session.Snapshot{}, err
	}

	if expectedRole != "" && result.Identity.Role != expectedRole {
		err := fmt.Errorf("account role %q does not match expected %q: %w",
			result.Identity.Role, expectedRole, auth.ErrInvalidCredentials)
		s.recordLoginFailure(email, meta, err)
		return session.Snapshot{}, err
	}

	if err := s.manager.Commit(ctx, result.Identity, result.Token, result.RefreshToken); err != nil {
		return session.Snapshot{}, fmt.Errorf("commit session: %w", err)
	}

	snapshot := s.manager.Current()
	s.logger.Info("login succeeded",
		"email", result.Identity.Email,
		"role", result.Identity.Role,
		"request_id", meta.RequestID,
	)
	s.record(audit.Record{
		Timestamp:  time.Now().UTC(),
		EventType:  audit.EventTypeLogin,
		Email:      result.Identity.Email,
		IdentityID: result.Identity.ID,
		Role:       string(result.Identity.Role),
		SourceIP:   meta.SourceIP,
		RequestID:  meta.RequestID,
	})

	return snapshot, nil
}

// Logout ends the session. The strategy is notified best effort: a failure
// there is logged and the local session is cleared anyway, so a dead backend
// can never trap a user in a signed-in state.
func (s *AuthService) Logout(ctx context.Context, meta RequestMeta) error {
	snapshot := s.manager.Current()
	token, _ := s.manager.Credentials()

	if token != "" {
		if err := s.strategy.NotifyLogout(ctx, token); err != nil {
			s.logger.Warn("logout notification failed, clearing session anyway",
				"error", err,
				"request_id", meta.RequestID,
			)
		}
	}

	if err := s.manager.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	record := audit.Record{
		Timestamp: time.Now().UTC(),
		EventType: audit.EventTypeLogout,
		SourceIP:  meta.SourceIP,
		RequestID: meta.RequestID,
	}
	if snapshot.Identity != nil {
		record.Email = snapshot.Identity.Email
		record.IdentityID = snapshot.Identity.ID
		record.Role = string(snapshot.Identity.Role)
	}
	s.record(record)

	return nil
}

// Current returns the session snapshot.
func (s *AuthService) Current() session.Snapshot {
	return s.manager.Current()
}

// Token returns the current credential token, empty when signed out.
func (s *AuthService) Token() string {
	token, _ := s.manager.Credentials()
	return token
}

// RecordRateLimited audits a login attempt rejected by the rate limiter.
func (s *AuthService) RecordRateLimited(email string, meta RequestMeta) {
	s.record(audit.Record{
		Timestamp: time.Now().UTC(),
		EventType: audit.EventTypeRateLimited,
		Email:     email,
		SourceIP:  meta.SourceIP,
		RequestID: meta.RequestID,
	})
}

func (s *AuthService) recordLoginFailure(email string, meta RequestMeta, cause error) {
	s.logger.Info("login rejected",
		"email", email,
		"reason", cause.Error(),
		"request_id", meta.RequestID,
	)
	s.record(audit.Record{
		Timestamp: time.Now().UTC(),
		EventType: audit.EventTypeLoginFailed,
		Email:     email,
		SourceIP:  meta.SourceIP,
		RequestID: meta.RequestID,
		Reason:    cause.Error(),
	})
}

func (s *AuthService) record(record audit.Record) {
	if s.audits == nil {
		return
	}
	s.audits.Record(record)
}
