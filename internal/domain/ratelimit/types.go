// Package ratelimit provides rate limiting domain types for login attempts.
package ratelimit

import (
	"fmt"
	"time"
)

// Config defines the rate limiting parameters.
type Config struct {
	// Rate is the number of allowed attempts in the period.
	Rate int

	// Burst is the maximum number of attempts that can occur at once.
	// Burst should be >= Rate for meaningful operation.
	Burst int

	// Period is the time window for the rate limit.
	Period time.Duration
}

// Result contains the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the attempt is allowed.
	Allowed bool

	// Remaining is the number of remaining attempts in the current window.
	Remaining int

	// RetryAfter is the duration until the next attempt will be allowed.
	// Only meaningful when Allowed is false.
	RetryAfter time.Duration

	// ResetAfter is the duration until the rate limit resets.
	ResetAfter time.Duration
}

// KeyType identifies the type of rate limit key.
type KeyType string

const (
	// KeyTypeIP is for per-client-IP rate limiting.
	KeyTypeIP KeyType = "ip"

	// KeyTypeEmail is for per-login-email rate limiting, so spreading
	// attempts on one account across addresses buys nothing.
	KeyTypeEmail KeyType = "email"
)

// keyPrefix is the base prefix for all rate limit keys.
const keyPrefix = "ratelimit"

// FormatKey returns a structured rate limit key.
// Format: "ratelimit:{type}:{value}"
func FormatKey(keyType KeyType, value string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, keyType, value)
}
