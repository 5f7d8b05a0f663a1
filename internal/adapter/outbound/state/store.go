package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/evcare/portal-gate/internal/domain/auth"
	"github.com/evcare/portal-gate/internal/domain/session"
)

// FileVault persists the session to a JSON file on disk.
// It provides atomic writes (write-tmp-then-rename), automatic backups, and
// file locking (flock for cross-process, mutex for in-process).
type FileVault struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileVault creates a FileVault for the given file path.
func NewFileVault(path string, logger *slog.Logger) *FileVault {
	return &FileVault{
		path:   path,
		logger: logger,
	}
}

// Load reads and parses the session file.
// If the file does not exist, it returns an empty Stored.
// If the file cannot be parsed, it returns session.ErrCorruptEntry so the
// caller can discard it.
// Warns if the existing file has permissions more open than 0600.
func (v *FileVault) Load(ctx context.Context) (*session.Stored, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			v.logger.Debug("session file not found, starting signed out", "path", v.path)
			return &session.Stored{}, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	// Unix file permission bits are not supported on Windows.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(v.path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 { // group or other has access
				v.logger.Warn("session file has too-open permissions, should be 0600",
					"path", v.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var entry sessionEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse session file: %w", session.ErrCorruptEntry)
	}

	stored := &session.Stored{
		Token:        entry.Token,
		RefreshToken: entry.RefreshToken,
		UpdatedAt:    entry.UpdatedAt,
	}
	if len(entry.User) > 0 && string(entry.User) != "null" {
		var identity auth.Identity
		if err := json.Unmarshal(entry.User, &identity); err != nil {
			return nil, fmt.Errorf("parse stored user: %w", session.ErrCorruptEntry)
		}
		stored.Identity = &identity
	}

	return stored, nil
}

// Save writes the session to disk atomically.
//
// The write sequence is:
//  1. Acquire in-process mutex
//  2. Acquire flock on path+".lock"
//  3. Copy current file to path+".bak" (ignored if no current file)
//  4. Marshal the entry as indented JSON
//  5. Write to path+".tmp" with 0600 permissions
//  6. Fsync the temp file
//  7. Rename path+".tmp" -> path
//  8. Release flock
//  9. Release mutex
func (v *FileVault) Save(ctx context.Context, stored *session.Stored) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry := sessionEntry{
		Version:      "1",
		Token:        stored.Token,
		RefreshToken: stored.RefreshToken,
		UpdatedAt:    stored.UpdatedAt,
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	if stored.Identity != nil {
		userJSON, err := json.Marshal(stored.Identity)
		if err != nil {
			return fmt.Errorf("marshal stored user: %w", err)
		}
		entry.User = userJSON
	}

	unlock, err := v.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	// Backup of current file (ignore error if file doesn't exist).
	if currentData, readErr := os.ReadFile(v.path); readErr == nil {
		bakPath := v.path + ".bak"
		if writeErr := os.WriteFile(bakPath, currentData, 0600); writeErr != nil {
			v.logger.Warn("failed to create backup", "error", writeErr)
		}
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session entry: %w", err)
	}
	data = append(data, '\n')

	if err := v.writeAtomic(data); err != nil {
		return err
	}

	// Ensure 0600 permissions after rename as a safety net.
	if err := os.Chmod(v.path, 0600); err != nil {
		v.logger.Warn("failed to set permissions on session file", "error", err)
	}

	v.logger.Debug("session saved", "path", v.path)
	return nil
}

// Clear removes the session file. Clearing a missing file is a no-op.
// The backup file is removed as well so a cleared session cannot be
// recovered from disk.
func (v *FileVault) Clear(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	unlock, err := v.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	if err := os.Remove(v.path + ".bak"); err != nil && !os.IsNotExist(err) {
		v.logger.Warn("failed to remove session backup", "error", err)
	}

	v.logger.Debug("session cleared", "path", v.path)
	return nil
}

// lockFile acquires the cross-process flock and returns a release func.
// Must be called with v.mu held.
func (v *FileVault) lockFile() (func(), error) {
	lockPath := v.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := flockLock(lockFile.Fd()); err != nil {
		_ = lockFile.Close()
		return nil, fmt.Errorf("acquire file lock: %w", err)
	}

	return func() {
		_ = flockUnlock(lockFile.Fd())
		_ = lockFile.Close()
	}, nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it
// over the target path. On any error the temp file is cleaned up.
func (v *FileVault) writeAtomic(data []byte) error {
	tmpPath := v.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, v.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to session: %w", err)
	}
	return nil
}

// Exists returns true if the session file exists on disk.
func (v *FileVault) Exists() bool {
	_, err := os.Stat(v.path)
	return err == nil
}

// Path returns the configured file path.
func (v *FileVault) Path() string {
	return v.path
}

// Compile-time interface verification.
var _ session.Vault = (*FileVault)(nil)
