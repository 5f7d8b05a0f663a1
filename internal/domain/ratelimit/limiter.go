package ratelimit

import "context"

// Limiter is the interface for login rate limiting.
//
// Implementations should use GCRA (Generic Cell Rate Algorithm) for smooth
// rate limiting without burst issues at window boundaries. The interface is
// storage-agnostic; the in-memory implementation is the only one shipped.
type Limiter interface {
	// Allow checks if an attempt identified by key is allowed under the
	// given config. The key should be a structured identifier created by
	// FormatKey.
	//
	// Allow atomically advances the rate limit state and returns the
	// result. If the attempt is not allowed, RetryAfter in the result
	// indicates when the next attempt will be allowed.
	Allow(ctx context.Context, key string, config Config) (Result, error)
}
