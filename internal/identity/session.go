// Package identity provides the authenticated-identity signal: the current
// owner id, or none, plus notifications when it changes.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/syncerror"

	"github.com/golang-jwt/jwt/v5"
)

// Listener receives the new owner id; empty means logged out.
type Listener func(owner string)

// Session holds the current identity.
type Session struct {
	mu        sync.RWMutex
	owner     string
	listeners []Listener
	logger    logging.Logger
}

// NewSession returns a logged-out session.
func NewSession(logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Session{logger: logger}
}

// Current returns the owner id and whether someone is logged in.
func (s *Session) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner, s.owner != ""
}

// OnChange registers l. It is called after every identity change.
func (s *Session) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Login switches to owner. Logging in as the current owner does nothing.
func (s *Session) Login(owner string) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return syncerror.NewValidationError("owner", "must not be empty")
	}
	s.set(owner)
	return nil
}

// Logout clears the identity.
func (s *Session) Logout() {
	s.set("")
}

// LoginWithToken verifies an HS256 token signed with secret and logs in as
// its "uid" claim, falling back to "sub".
func (s *Session) LoginWithToken(token string, secret []byte) error {
	owner, err := ParseToken(token, secret)
	if err != nil {
		return err
	}
	return s.Login(owner)
}

func (s *Session) set(owner string) {
	s.mu.Lock()
	if s.owner == owner {
		s.mu.Unlock()
		return
	}
	s.owner = owner
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	if owner == "" {
		s.logger.Info("Logged out")
	} else {
		s.logger.Info("Logged in", logging.F(logging.FieldOwner, owner))
	}
	for _, l := range listeners {
		l(owner)
	}
}

// ParseToken validates token and returns its owner id.
func ParseToken(token string, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: no token secret configured", syncerror.ErrInvalidToken)
	}
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", syncerror.ErrInvalidToken)
		}
		return "", fmt.Errorf("%w: %v", syncerror.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", syncerror.ErrInvalidToken
	}
	if uid, ok := claims["uid"].(string); ok && uid != "" {
		return uid, nil
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: no uid or sub claim", syncerror.ErrInvalidToken)
	}
	return sub, nil
}

// IssueToken signs an HS256 token for owner that expires after ttl.
func IssueToken(owner string, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: no token secret configured", syncerror.ErrInvalidToken)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"uid": owner,
		"sub": owner,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
