package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/CyberwizD/account-events/services/account/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession is returned for missing, malformed, forged or expired
// session tokens.
var ErrInvalidSession = errors.New("invalid session")

// DefaultSessionTTL bounds how long a sign-in stays valid.
const DefaultSessionTTL = 24 * time.Hour

// SessionClaims is the JWT payload stored in the session cookie.
type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the subject of the session.
func (c *SessionClaims) UserID() string { return c.Subject }

// SessionManager signs and verifies HS256 session tokens.
type SessionManager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSessionManager creates a SessionManager signing with key.
func NewSessionManager(key string, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{key: []byte(key), ttl: ttl, now: time.Now}
}

// TTL returns the session lifetime.
func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Issue signs a session for user.
func (m *SessionManager) Issue(user *models.User) (string, error) {
	now := m.now()
	claims := SessionClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Parse verifies a signed session and returns its claims.
func (m *SessionManager) Parse(token string) (*SessionClaims, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
