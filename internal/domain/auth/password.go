package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrUnknownHashType is returned when a stored password has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// argon2idParams defines OWASP minimum parameters for Argon2id.
// Memory: 47 MiB, Iterations: 1, Parallelism: 1
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024, // 47 MiB (OWASP minimum: 46 MiB)
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPassword returns an Argon2id hash of the password in PHC format.
// The hash includes a random salt and uses OWASP minimum parameters.
// Format: $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2idParams)
}

// DetectHashType identifies the format of a stored password value.
// Returns "argon2id" for PHC format, "plain" for anything else.
// Plaintext entries exist to support the demo account table, where
// the password is part of the fixture and secrecy is not a goal.
func DetectHashType(stored string) string {
	if strings.HasPrefix(stored, "$argon2id$") {
		return "argon2id"
	}
	return "plain"
}

// VerifyPassword verifies a candidate password against a stored value.
// PHC-format values are verified with Argon2id; anything else is compared
// as plaintext in constant time.
// Returns (true, nil) if match, (false, nil) if no match.
func VerifyPassword(candidate, stored string) (bool, error) {
	switch DetectHashType(stored) {
	case "argon2id":
		match, err := safeArgon2idCompare(candidate, stored)
		if err != nil {
			return false, err
		}
		return match, nil

	default:
		match := subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1
		return match, nil
	}
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic recovery.
// The underlying argon2 library panics on malformed Argon2id hashes with invalid
// parameters (e.g., t=0 rounds, p=0 parallelism). This function catches those panics
// and converts them to errors instead, ensuring VerifyPassword never panics.
func safeArgon2idCompare(candidate, stored string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(candidate, stored)
}
