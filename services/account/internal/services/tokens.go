package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/CyberwizD/account-events/pkg/events"
	"github.com/CyberwizD/account-events/services/account/internal/models"
	"github.com/CyberwizD/account-events/services/account/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// TokenBytes is the amount of randomness in a token value.
	TokenBytes = 32
	// DefaultTokenTTL is how long an issued token stays redeemable.
	DefaultTokenTTL  = 15 * time.Minute
	maxIssueAttempts = 5
)

var (
	// ErrTokenNotFound covers tokens that never existed, were already
	// redeemed or have expired. Callers cannot tell these apart.
	ErrTokenNotFound = errors.New("invalid or expired token")
	// ErrTokenCollision means every issue attempt hit an existing value.
	ErrTokenCollision = errors.New("could not generate a unique token value")
	// ErrTokenStore wraps storage failures.
	ErrTokenStore = errors.New("token store")
)

// TokenRepository is the persistence TokenService needs.
type TokenRepository interface {
	Create(ctx context.Context, token *models.Token) error
	Find(ctx context.Context, value string, kind events.TokenKind) (*models.Token, error)
	Delete(ctx context.Context, id, value string) (bool, error)
	DeleteForUser(ctx context.Context, userID string, kind events.TokenKind) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRandom replaces crypto/rand as the source of token values.
func WithRandom(r io.Reader) TokenOption {
	return func(s *TokenService) {
		if r != nil {
			s.random = r
		}
	}
}

// TokenService issues and redeems single-use tokens.
type TokenService struct {
	store  TokenRepository
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
}

// NewTokenService creates a TokenService over store.
func NewTokenService(store TokenRepository, opts ...TokenOption) *TokenService {
	s := &TokenService{
		store:  store,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithStore returns a copy of the service that uses store.
func (s *TokenService) WithStore(store TokenRepository) *TokenService {
	cp := *s
	cp.store = store
	return &cp
}

// InTx returns a copy of the service bound to a gorm transaction.
func (s *TokenService) InTx(tx *gorm.DB) *TokenService {
	return s.WithStore(repository.NewTokenStore(tx))
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// GenerateValue reads TokenBytes from r and hex encodes them.
func GenerateValue(r io.Reader) (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Issue creates and stores a token of kind for userID.
func (s *TokenService) Issue(ctx context.Context, userID string, kind events.TokenKind) (*models.Token, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		value, err := GenerateValue(s.random)
		if err != nil {
			return nil, err
		}
		now := s.now().UTC()
		token := &models.Token{
			ID:        uuid.NewString(),
			UserID:    userID,
			Value:     value,
			Kind:      kind,
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
		}
		err = s.store.Create(ctx, token)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: create: %w", ErrTokenStore, err)
		}
	}
	return nil, ErrTokenCollision
}

// Validate returns the live token matching value and kind. The expiry
// timestamp is checked here, whether or not storage cleanup has run.
func (s *TokenService) Validate(ctx context.Context, value string, kind events.TokenKind) (*models.Token, error) {
	if value == "" {
		return nil, ErrTokenNotFound
	}
	token, err := s.store.Find(ctx, value, kind)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: find: %w", ErrTokenStore, err)
	}
	if token.Expired(s.now()) {
		// Best effort; the timestamp check already decided.
		_, _ = s.store.Delete(ctx, token.ID, token.Value)
		return nil, ErrTokenNotFound
	}
	return token, nil
}

// Redeem consumes a token and returns the user it was issued to. At most one
// of several concurrent redemptions of the same token succeeds.
func (s *TokenService) Redeem(ctx context.Context, value string, kind events.TokenKind) (string, error) {
	token, err := s.Validate(ctx, value, kind)
	if err != nil {
		return "", err
	}
	deleted, err := s.store.Delete(ctx, token.ID, token.Value)
	if err != nil {
		return "", fmt.Errorf("%w: delete: %w", ErrTokenStore, err)
	}
	if !deleted {
		return "", ErrTokenNotFound
	}
	return token.UserID, nil
}

// RevokeAll deletes every outstanding token of kind for userID.
func (s *TokenService) RevokeAll(ctx context.Context, userID string, kind events.TokenKind) error {
	if _, err := s.store.DeleteForUser(ctx, userID, kind); err != nil {
		return fmt.Errorf("%w: revoke: %w", ErrTokenStore, err)
	}
	return nil
}

// PurgeExpired deletes expired tokens and returns how many went away.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: purge: %w", ErrTokenStore, err)
	}
	return n, nil
}
