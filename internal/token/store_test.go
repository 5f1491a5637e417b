package token

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedJWT(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestNew_NoTokenIsFatal(t *testing.T) {
	if _, err := New("", ""); !errors.Is(err, ErrNoToken) {
		t.Errorf("New with no token: err = %v, want ErrNoToken", err)
	}
}

func TestNew_ReadsTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("opaque-credential\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := New("", path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := s.AccessToken()
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if got != "opaque-credential" {
		t.Errorf("token = %q, want trimmed file contents", got)
	}
}

func TestAccessToken_OpaquePassesThrough(t *testing.T) {
	s, err := New("not-a-jwt", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := s.AccessToken()
	if err != nil || got != "not-a-jwt" {
		t.Errorf("AccessToken = (%q, %v), want pass-through", got, err)
	}
}

func TestAccessToken_ValidJWT(t *testing.T) {
	s, err := New(signedJWT(t, time.Now().Add(time.Hour)), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.AccessToken(); err != nil {
		t.Errorf("AccessToken on a live JWT: %v", err)
	}
}

func TestAccessToken_ExpiredJWT(t *testing.T) {
	s, err := New(signedJWT(t, time.Now().Add(-time.Minute)), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.AccessToken(); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("AccessToken on an expired JWT: err = %v, want ErrExpiredToken", err)
	}
}
