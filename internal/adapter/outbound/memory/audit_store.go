package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/evcare/portal-gate/internal/domain/audit"
)

const defaultRecentCap = 1000

// AuditStore implements audit.Store writing JSON lines to a writer, stdout
// by default. Also keeps a bounded ring buffer for recent record queries.
// Used in development mode where rotating audit files are overkill.
type AuditStore struct {
	encoder *json.Encoder
	writer  io.Writer
	mu      sync.Mutex
	// recent is a bounded ring buffer of the most recent records.
	recent []audit.Record
	cap    int
}

// resolveCapacity returns the first positive capacity value, or defaultRecentCap.
func resolveCapacity(capacity ...int) int {
	if len(capacity) > 0 && capacity[0] > 0 {
		return capacity[0]
	}
	return defaultRecentCap
}

// NewAuditStore creates an audit store writing to stdout.
// An optional capacity parameter sets the ring buffer size (default 1000).
func NewAuditStore(capacity ...int) *AuditStore {
	return NewAuditStoreWithWriter(os.Stdout, capacity...)
}

// NewAuditStoreWithWriter creates an audit store writing to the given writer.
// An optional capacity parameter sets the ring buffer size (default 1000).
func NewAuditStoreWithWriter(w io.Writer, capacity ...int) *AuditStore {
	cap := resolveCapacity(capacity...)
	return &AuditStore{
		encoder: json.NewEncoder(w),
		writer:  w,
		recent:  make([]audit.Record, 0, cap),
		cap:     cap,
	}
}

// Append writes records as JSON lines and keeps them in the ring buffer.
func (s *AuditStore) Append(ctx context.Context, records ...audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if err := s.encoder.Encode(r); err != nil {
			return err
		}
		if len(s.recent) >= s.cap {
			// Shift left, drop oldest.
			copy(s.recent, s.recent[1:])
			s.recent[len(s.recent)-1] = r
		} else {
			s.recent = append(s.recent, r)
		}
	}
	return nil
}

// Flush forces pending records to storage.
// No-op for this implementation (no buffering).
func (s *AuditStore) Flush(ctx context.Context) error {
	return nil
}

// Close releases resources.
func (s *AuditStore) Close() error {
	// Close file if it's not stdout/stderr
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// GetRecent returns the N most recent records (newest first).
func (s *AuditStore) GetRecent(n int) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.recent)
	if n > total {
		n = total
	}
	if n == 0 {
		return nil
	}
	result := make([]audit.Record, n)
	for i := 0; i < n; i++ {
		result[i] = s.recent[total-1-i]
	}
	return result
}

// Filter selects records from the ring buffer for inspection.
type Filter struct {
	// EventType matches exactly when set (e.g. "access.login_failed").
	EventType string
	// Email matches case-insensitively when set.
	Email string
	// Since excludes records older than this time when set.
	Since time.Time
	// Limit caps the result size, default and max 100.
	Limit int
}

// Query returns buffered records matching the filter, newest first.
func (s *AuditStore) Query(filter Filter) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var result []audit.Record
	for i := len(s.recent) - 1; i >= 0 && len(result) < limit; i-- {
		rec := s.recent[i]
		if filter.EventType != "" && rec.EventType != filter.EventType {
			continue
		}
		if filter.Email != "" && !strings.EqualFold(rec.Email, filter.Email) {
			continue
		}
		if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
			continue
		}
		result = append(result, rec)
	}
	return result
}

var _ audit.Store = (*AuditStore)(nil)
