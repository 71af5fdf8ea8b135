// Package session holds the bearer token and the claims decoded from it.
// The decode is best-effort and UNVERIFIED: the client never checks the
// token's signature or expiry, the server is the sole authority and reports
// expiry through 401 responses. Claims only adapt presentation.
package session

import (
	"context"
	"strconv"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/snag21205/unimerch/core"
)

// TokenKey is the storage key holding the raw token string, separate from
// the cart mirror document.
const TokenKey = "unimerch.auth_token"

// Claims are the display-only fields pulled from the token payload.
type Claims struct {
	UserID string
	Role   core.Role
}

// Store holds the authentication state for one application session.
type Store struct {
	mu      sync.RWMutex
	token   string
	claims  *Claims
	storage core.Storage
	logger  core.Logger
	// onChange observers run after Login/Logout with the new auth state.
	// The cart store uses this to drive its Guest/Synced transitions.
	onChange []func(authenticated bool)
}

// New builds a Store, restoring a previously persisted token when one exists.
func New(storage core.Storage, logger core.Logger) *Store {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	s := &Store{storage: storage, logger: logger}

	if storage != nil {
		if token, err := storage.Get(context.Background(), TokenKey); err == nil && token != "" {
			s.token = token
			s.claims = decodeClaims(token)
		}
	}
	return s
}

// Login stores the token and derives the claims. The token is persisted
// under its own key so a restarted client stays signed in.
func (s *Store) Login(token string) {
	s.mu.Lock()
	s.token = token
	s.claims = decodeClaims(token)
	s.mu.Unlock()

	if s.storage != nil {
		if err := s.storage.Set(context.Background(), TokenKey, token, 0); err != nil {
			s.logger.Warn("Failed to persist auth token", map[string]interface{}{
				"operation": "session_login",
				"error":     err.Error(),
			})
		}
	}
	s.notify(true)
}

// Logout clears the token and claims.
func (s *Store) Logout() {
	s.mu.Lock()
	wasAuthenticated := s.token != ""
	s.token = ""
	s.claims = nil
	s.mu.Unlock()

	if s.storage != nil {
		_ = s.storage.Delete(context.Background(), TokenKey)
	}
	if wasAuthenticated {
		s.notify(false)
	}
}

// IsAuthenticated is a presence check only: true iff a non-empty token is
// held. Validity is the server's call.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Token returns the raw bearer token, implementing api.TokenSource.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// UserID returns the decoded user id claim; ok is false on any decode
// failure rather than an error.
func (s *Store) UserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil || s.claims.UserID == "" {
		return "", false
	}
	return s.claims.UserID, true
}

// Role returns the decoded role claim; ok is false when it cannot be read.
func (s *Store) Role() (core.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil || s.claims.Role == "" {
		return "", false
	}
	return s.claims.Role, true
}

// OnChange registers an observer of login/logout transitions.
func (s *Store) OnChange(fn func(authenticated bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *Store) notify(authenticated bool) {
	s.mu.RLock()
	observers := make([]func(bool), len(s.onChange))
	copy(observers, s.onChange)
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(authenticated)
	}
}

// decodeClaims parses the token payload without verifying it. Any failure
// yields nil: a malformed token simply means no claims to display.
func decodeClaims(token string) *Claims {
	if token == "" {
		return nil
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}

	claims := &Claims{}
	for _, key := range []string{"id", "user_id", "sub"} {
		if v, ok := mapClaims[key].(string); ok && v != "" {
			claims.UserID = v
			break
		}
		// Numeric ids appear as float64 after JSON decoding
		if v, ok := mapClaims[key].(float64); ok {
			claims.UserID = strconv.FormatFloat(v, 'f', -1, 64)
			break
		}
	}
	if role, ok := mapClaims["role"].(string); ok {
		switch core.Role(role) {
		case core.RoleUser, core.RoleSeller, core.RoleAdmin:
			claims.Role = core.Role(role)
		}
	}
	if claims.UserID == "" && claims.Role == "" {
		return nil
	}
	return claims
}
