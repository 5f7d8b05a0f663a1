// Package redis provides a Redis-backed session vault for deployments that
// want the session to survive across hosts.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evcare/portal-gate/internal/domain/auth"
	"github.com/evcare/portal-gate/internal/domain/session"
)

// Hash fields mirror the persisted storage keys.
const (
	fieldToken        = "token"
	fieldRefreshToken = "refreshToken"
	fieldUser         = "user"
	fieldUpdatedAt    = "updated_at"
)

// DefaultKeyPrefix namespaces the vault's keys in a shared Redis.
const DefaultKeyPrefix = "portal-gate:"

// Vault implements session.Vault on a Redis hash.
type Vault struct {
	client *redis.Client
	key    string
}

// Option configures a Vault.
type Option func(*Vault)

// WithKeyPrefix overrides the default key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(v *Vault) {
		v.key = prefix + "session"
	}
}

// NewVault creates a vault on the given client.
func NewVault(client *redis.Client, opts ...Option) *Vault {
	v := &Vault{
		client: client,
		key:    DefaultKeyPrefix + "session",
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Load reads the session hash. A missing key means signed out.
// A user field that does not parse returns session.ErrCorruptEntry.
func (v *Vault) Load(ctx context.Context) (*session.Stored, error) {
	fields, err := v.client.HGetAll(ctx, v.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load session hash: %w", err)
	}
	if len(fields) == 0 {
		return &session.Stored{}, nil
	}

	stored := &session.Stored{
		Token:        fields[fieldToken],
		RefreshToken: fields[fieldRefreshToken],
	}
	if raw := fields[fieldUpdatedAt]; raw != "" {
		if ts, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			stored.UpdatedAt = ts
		}
	}
	if raw := fields[fieldUser]; raw != "" {
		var identity auth.Identity
		if err := json.Unmarshal([]byte(raw), &identity); err != nil {
			return nil, fmt.Errorf("parse stored user: %w", session.ErrCorruptEntry)
		}
		stored.Identity = &identity
	}

	return stored, nil
}

// Save replaces the session hash atomically via a pipeline.
func (v *Vault) Save(ctx context.Context, stored *session.Stored) error {
	updatedAt := stored.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	values := map[string]any{
		fieldToken:        stored.Token,
		fieldRefreshToken: stored.RefreshToken,
		fieldUpdatedAt:    updatedAt.Format(time.RFC3339Nano),
	}
	if stored.Identity != nil {
		userJSON, err := json.Marshal(stored.Identity)
		if err != nil {
			return fmt.Errorf("marshal stored user: %w", err)
		}
		values[fieldUser] = string(userJSON)
	}

	pipe := v.client.TxPipeline()
	pipe.Del(ctx, v.key)
	pipe.HSet(ctx, v.key, values)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session hash: %w", err)
	}
	return nil
}

// Clear deletes the session hash. Clearing a missing key is a no-op.
func (v *Vault) Clear(ctx context.Context) error {
	if err := v.client.Del(ctx, v.key).Err(); err != nil {
		return fmt.Errorf("clear session hash: %w", err)
	}
	return nil
}

// Ping verifies connectivity. Used by the health checker.
func (v *Vault) Ping(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}

// Compile-time interface verification.
var _ session.Vault = (*Vault)(nil)
