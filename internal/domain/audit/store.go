package audit

import "context"

// Store persists audit records.
// Interface owned by domain per hexagonal architecture.
// Implementation handles batching and async writes.
type Store interface {
	// Append stores audit records. Must be non-blocking from caller perspective.
	Append(ctx context.Context, records ...Record) error

	// Flush forces pending records to storage. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}
