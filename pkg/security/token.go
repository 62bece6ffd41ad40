// Package security holds the random material the coordinator hands out:
// CSRF tokens and OAuth state values.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	CSRFTokenBytes  = 32
	OAuthStateBytes = 24
)

// NewToken returns n random bytes, URL-safe base64 encoded without padding.
func NewToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
