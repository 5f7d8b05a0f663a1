// Package sqlite provides a SQLite-backed session vault.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/evcare/portal-gate/internal/domain/auth"
	"github.com/evcare/portal-gate/internal/domain/session"
)

// schema holds a single session row. The id CHECK pins the table to one row
// so a Save is always an upsert of row 1.
const schema = `
CREATE TABLE IF NOT EXISTS portal_session (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	user_json TEXT,
	updated_at TEXT NOT NULL
);
`

// Vault implements session.Vault on a SQLite database file.
// database/sql serializes access, so the vault is safe for concurrent use.
type Vault struct {
	db *sql.DB
}

// NewVault opens (and creates if needed) the database at path and ensures
// the schema exists. Use ":memory:" for an ephemeral vault in tests.
func NewVault(path string) (*Vault, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY on concurrent saves.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session table: %w", err)
	}

	return &Vault{db: db}, nil
}

// Load reads the session row. A missing row means signed out.
// A row whose user column does not parse returns session.ErrCorruptEntry.
func (v *Vault) Load(ctx context.Context) (*session.Stored, error) {
	row := v.db.QueryRowContext(ctx,
		`SELECT token, refresh_token, user_json, updated_at FROM portal_session WHERE id = 1`)

	var (
		token        string
		refreshToken string
		userJSON     sql.NullString
		updatedAt    string
	)
	if err := row.Scan(&token, &refreshToken, &userJSON, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &session.Stored{}, nil
		}
		return nil, fmt.Errorf("load session row: %w", err)
	}

	stored := &session.Stored{
		Token:        token,
		RefreshToken: refreshToken,
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		stored.UpdatedAt = ts
	}
	if userJSON.Valid && userJSON.String != "" {
		var identity auth.Identity
		if err := json.Unmarshal([]byte(userJSON.String), &identity); err != nil {
			return nil, fmt.Errorf("parse stored user: %w", session.ErrCorruptEntry)
		}
		stored.Identity = &identity
	}

	return stored, nil
}

// Save upserts the session row.
func (v *Vault) Save(ctx context.Context, stored *session.Stored) error {
	var userJSON sql.NullString
	if stored.Identity != nil {
		data, err := json.Marshal(stored.Identity)
		if err != nil {
			return fmt.Errorf("marshal stored user: %w", err)
		}
		userJSON = sql.NullString{String: string(data), Valid: true}
	}

	updatedAt := stored.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := v.db.ExecContext(ctx, `
		INSERT INTO portal_session (id, token, refresh_token, user_json, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			refresh_token = excluded.refresh_token,
			user_json = excluded.user_json,
			updated_at = excluded.updated_at`,
		stored.Token, stored.RefreshToken, userJSON, updatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save session row: %w", err)
	}
	return nil
}

// Clear deletes the session row. Clearing an empty vault is a no-op.
func (v *Vault) Clear(ctx context.Context) error {
	if _, err := v.db.ExecContext(ctx, `DELETE FROM portal_session WHERE id = 1`); err != nil {
		return fmt.Errorf("clear session row: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (v *Vault) Close() error {
	return v.db.Close()
}

// Compile-time interface verification.
var _ session.Vault = (*Vault)(nil)
