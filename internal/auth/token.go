// Package auth checks the API and admin tokens a server is configured with.
// A configured token is either the plaintext value or its bcrypt hash, so
// deployments can keep only the hash in their environment.
package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const minTokenLength = 16

// ValidateToken checks minimal token requirements.
func ValidateToken(token string) error {
	if len(token) < minTokenLength {
		return fmt.Errorf("token must be at least %d characters", minTokenLength)
	}
	if strings.TrimSpace(token) != token {
		return fmt.Errorf("token must not start or end with whitespace")
	}
	return nil
}

// HashToken hashes one plaintext token for use as a configured token.
func HashToken(token string) (string, error) {
	if err := ValidateToken(token); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// IsHashed reports whether configured looks like a bcrypt hash.
func IsHashed(configured string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(configured, prefix) {
			return true
		}
	}
	return false
}

// Verify checks candidate against a configured token. An empty candidate
// never matches.
func Verify(configured, candidate string) bool {
	if candidate == "" || strings.TrimSpace(configured) == "" {
		return false
	}
	if IsHashed(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(candidate)) == 1
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	token, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
