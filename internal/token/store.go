// Package token supplies the bearer credential used to authenticate against
// the livestream service.
package token

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken means no credential was configured. Starting a session
	// without one is a fatal error for the caller.
	ErrNoToken = errors.New("no access token configured")
	// ErrExpiredToken means the configured JWT's expiry has passed.
	ErrExpiredToken = errors.New("access token has expired")
)

// Store holds a bearer credential loaded once at construction. Opaque
// (non-JWT) tokens are passed through as-is; JWTs are rejected client-side
// once expired so a dead credential fails fast instead of at the server.
type Store struct {
	token string
}

// New builds a store from an inline token or, when that is empty, from the
// contents of tokenFile.
func New(inline, tokenFile string) (*Store, error) {
	tok := strings.TrimSpace(inline)
	if tok == "" && tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("read token file: %w", err)
		}
		tok = strings.TrimSpace(string(data))
	}
	if tok == "" {
		return nil, ErrNoToken
	}
	return &Store{token: tok}, nil
}

// AccessToken returns the credential, validating JWT expiry when the token
// is a parseable JWT. The signature is not verified: the client only holds
// the token, the server is the authority.
func (s *Store) AccessToken() (string, error) {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(s.token, claims)
	if err != nil {
		// Opaque token: let the server judge it.
		return s.token, nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return s.token, nil
	}
	if time.Now().After(exp.Time) {
		return "", ErrExpiredToken
	}
	return s.token, nil
}
