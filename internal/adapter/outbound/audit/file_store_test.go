package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/evcare/portal-gate/internal/domain/audit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRecord(eventType string) audit.Record {
	return audit.Record{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Email:     "admin@evcare.com",
		SourceIP:  "127.0.0.1",
		RequestID: "req-1",
	}
}

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(FileConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, dir
}

func readRecords(t *testing.T, path string) []audit.Record {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer func() { _ = f.Close() }()

	var records []audit.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if scanner.Text() == "" {
			continue
		}
		var rec audit.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal audit line: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

func TestFileStore_AppendWritesJSONLines(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	records := []audit.Record{
		testRecord(audit.EventTypeLogin),
		testRecord(audit.EventTypeLogout),
	}
	if err := store.Append(ctx, records...); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(dir, "audit-"+today+".log")
	got := readRecords(t, path)

	if len(got) != 2 {
		t.Fatalf("read %d records, want 2", len(got))
	}
	if got[0].EventType != audit.EventTypeLogin {
		t.Errorf("first EventType = %q, want %q", got[0].EventType, audit.EventTypeLogin)
	}
	if got[1].EventType != audit.EventTypeLogout {
		t.Errorf("second EventType = %q, want %q", got[1].EventType, audit.EventTypeLogout)
	}
	if got[0].Email != "admin@evcare.com" {
		t.Errorf("Email = %q, want admin@evcare.com", got[0].Email)
	}
}

func TestFileStore_AppendEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Append(context.Background()); err != nil {
		t.Errorf("Append() with no records error: %v", err)
	}
}

func TestFileStore_SizeRotation(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(FileConfig{Dir: dir, MaxFileSizeMB: 1}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	// Force the size check to trip on the next append
	store.mu.Lock()
	store.currentSize = store.maxFileSize
	store.mu.Unlock()

	if err := store.Append(context.Background(), testRecord(audit.EventTypeLogin)); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	rotated := filepath.Join(dir, "audit-"+today+"-1.log")
	if _, err := os.Stat(rotated); err != nil {
		t.Errorf("expected rotated file %s: %v", rotated, err)
	}
}

func TestFileStore_RetentionCleanup(t *testing.T) {
	dir := t.TempDir()

	// Seed an old file beyond the retention window
	oldDate := time.Now().UTC().AddDate(0, 0, -30).Format("2006-01-02")
	oldPath := filepath.Join(dir, "audit-"+oldDate+".log")
	if err := os.WriteFile(oldPath, []byte("{}\n"), 0600); err != nil {
		t.Fatalf("seed old file: %v", err)
	}

	store, err := NewFileStore(FileConfig{Dir: dir, RetentionDays: 7}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("old audit file should have been deleted, stat err = %v", err)
	}
}

func TestFileStore_ReopensExistingFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(FileConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	if err := first.Append(ctx, testRecord(audit.EventTypeLogin)); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	second, err := NewFileStore(FileConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() reopen error: %v", err)
	}
	defer func() { _ = second.Close() }()
	if err := second.Append(ctx, testRecord(audit.EventTypeLogout)); err != nil {
		t.Fatalf("Append() after reopen error: %v", err)
	}
	if err := second.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	got := readRecords(t, filepath.Join(dir, "audit-"+today+".log"))
	if len(got) != 2 {
		t.Errorf("read %d records after reopen, want 2", len(got))
	}
}

func TestFileStore_CloseIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestParseAuditFilename(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		wantOK     bool
		wantDate   string
		wantSuffix int
	}{
		{name: "plain daily file", filename: "audit-2026-08-29.log", wantOK: true, wantDate: "2026-08-29"},
		{name: "rotated file", filename: "audit-2026-08-29-3.log", wantOK: true, wantDate: "2026-08-29", wantSuffix: 3},
		{name: "not an audit file", filename: "portal-gate.yaml", wantOK: false},
		{name: "bad date shape", filename: "audit-20260829.log", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := parseAuditFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("parseAuditFilename(%q) ok = %v, want %v", tt.filename, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if info.date != tt.wantDate {
				t.Errorf("date = %q, want %q", info.date, tt.wantDate)
			}
			if info.suffix != tt.wantSuffix {
				t.Errorf("suffix = %d, want %d", info.suffix, tt.wantSuffix)
			}
		})
	}
}
