// Package credential supplies the session token the sync channel
// authenticates with. Absence of a token is an ordinary condition (session
// not yet hydrated, logged out, token expired) that callers handle by simply
// not connecting.
package credential

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var timeNow = time.Now

// Provider returns the current session token. ok is false when no usable
// token is available right now.
type Provider interface {
	Token() (token string, ok bool)
}

// Func adapts a plain function to the Provider interface.
type Func func() (string, bool)

// Token implements Provider.
func (f Func) Token() (string, bool) { return f() }

// Session holds a mutable session token and reports it absent once its JWT
// expiry has passed, so the supervisor idles in backoff instead of
// re-presenting a token the server is guaranteed to reject.
type Session struct {
	mu    sync.RWMutex
	token string
}

// NewSession creates a Session with an initial token, which may be empty.
func NewSession(token string) *Session {
	return &Session{token: token}
}

// Token implements Provider.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return "", false
	}
	if expired(token) {
		return "", false
	}
	return token, true
}

// SetToken replaces the current token. An empty token logs the session out.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// expired checks the token's exp claim without verifying the signature; the
// client does not hold the signing secret, and the server re-validates at
// handshake anyway. Tokens that do not parse as JWTs, or carry no exp claim,
// are passed through for the server to judge.
func expired(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(timeNow())
}
