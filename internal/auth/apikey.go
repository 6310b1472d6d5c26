// Package auth - apikey.go handles API key token generation and the
// "Authorization: ApiKey <token>" header scheme.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// APIKeyScheme is the Authorization scheme used by API key callers. It
	// coexists with "Bearer <jwt>"; a header using any other scheme is simply
	// not an API key and is left for the other authenticators.
	APIKeyScheme = "ApiKey "

	// APIKeyLength is the length of the random token in bytes
	APIKeyLength = 48
)

// ErrInvalidAPIKey is surfaced to callers presenting an unknown or
// deactivated key.
var ErrInvalidAPIKey = fmt.Errorf("Invalid or inactive API key")

// GenerateToken creates a new random API key token (URL-safe base64).
func GenerateToken() (string, error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// ParseAPIKeyHeader extracts the token from an Authorization header value.
// Returns ok=false when the header does not use the ApiKey scheme — the
// caller should fall through to other authentication methods, not fail.
func ParseAPIKeyHeader(header string) (token string, ok bool) {
	if !strings.HasPrefix(header, APIKeyScheme) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, APIKeyScheme)), true
}
