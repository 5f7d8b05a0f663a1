package auth

import "errors"

// Sentinel errors for the login flow. Callers classify failures with errors.Is.
var (
	// ErrInvalidCredentials is returned when the email/password pair is rejected,
	// either by the fixed account table or by the remote backend.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrServiceUnavailable is returned when the backend cannot be reached
	// (network failure, timeout, or 5xx). The credentials were never judged.
	ErrServiceUnavailable = errors.New("authentication service unavailable")
)
