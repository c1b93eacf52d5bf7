// Package session tracks whether the chat client holds a usable bearer
// token.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Status is the authentication state of the client.
type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// ErrUnauthenticated is returned when no valid token is available.
var ErrUnauthenticated = errors.New("not signed in")

// Provider reports the session state and ends sessions.
type Provider interface {
	Status() Status
	SignOut(ctx context.Context) error
}

// TokenSession is a Provider backed by a JWT kept in memory and,
// optionally, in a file.
type TokenSession struct {
	mu       sync.RWMutex
	path     string
	token    string
	subject  string
	expires  time.Time
	resolved bool
	now      func() time.Time
}

// NewTokenSession creates a session that reads its token from path unless
// token is given explicitly. It reports StatusLoading until Resolve.
func NewTokenSession(path, token string) *TokenSession {
	return &TokenSession{path: path, token: strings.TrimSpace(token), now: time.Now}
}

// Resolve loads and inspects the token. A missing or malformed token leaves
// the session unauthenticated; only unexpected read failures are returned.
func (s *TokenSession) Resolve() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resolved = true
	if s.token == "" && s.path != "" {
		data, err := os.ReadFile(s.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return StatusUnauthenticated, fmt.Errorf("read token file: %w", err)
		default:
			s.token = strings.TrimSpace(string(data))
		}
	}
	s.inspect()
	return s.statusLocked(), nil
}

// inspect reads the subject and expiry without verifying the signature;
// only the server can do that.
func (s *TokenSession) inspect() {
	s.subject, s.expires = "", time.Time{}
	if s.token == "" {
		return
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.token, claims); err != nil {
		s.token = ""
		return
	}
	s.subject = claims.Subject
	if claims.ExpiresAt != nil {
		s.expires = claims.ExpiresAt.Time
	}
}

// Status reports the current state. Expiry is evaluated on every call.
func (s *TokenSession) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked()
}

func (s *TokenSession) statusLocked() Status {
	switch {
	case !s.resolved:
		return StatusLoading
	case s.token == "":
		return StatusUnauthenticated
	case !s.expires.IsZero() && !s.now().Before(s.expires):
		return StatusUnauthenticated
	default:
		return StatusAuthenticated
	}
}

// Token returns the bearer token while authenticated.
func (s *TokenSession) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.statusLocked() != StatusAuthenticated {
		return "", ErrUnauthenticated
	}
	return s.token, nil
}

// Subject returns the user ID carried by the token.
func (s *TokenSession) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

// Save stores token in memory and in the token file.
func (s *TokenSession) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
		if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
			return fmt.Errorf("write token file: %w", err)
		}
	}
	s.token = strings.TrimSpace(token)
	s.resolved = true
	s.inspect()
	return nil
}

// SignOut forgets the token and deletes the token file.
func (s *TokenSession) SignOut(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token, s.subject, s.expires = "", "", time.Time{}
	s.resolved = true
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// Issue mints an HS256 token for userID. The gateway accepts it when it
// shares secret.
func Issue(secret, userID string, ttl time.Duration) (string, error) {
	if secret == "" || userID == "" {
		return "", errors.New("secret and user ID are required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
