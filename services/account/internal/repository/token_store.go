package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CyberwizD/account-events/pkg/events"
	"github.com/CyberwizD/account-events/services/account/internal/models"
	"gorm.io/gorm"
)

// TokenStore persists single-use tokens. It never fills in values or expiry
// on its own.
type TokenStore struct {
	db *gorm.DB
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

// WithTx returns a store whose queries run inside tx.
func (s *TokenStore) WithTx(tx *gorm.DB) *TokenStore {
	return &TokenStore{db: tx}
}

// Create inserts token. A value already in use yields ErrDuplicate.
func (s *TokenStore) Create(ctx context.Context, token *models.Token) error {
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: token value", ErrDuplicate)
		}
		return err
	}
	return nil
}

// Find looks a token up by value and kind.
func (s *TokenStore) Find(ctx context.Context, value string, kind events.TokenKind) (*models.Token, error) {
	var token models.Token
	err := s.db.WithContext(ctx).
		Where("value = ? AND kind = ?", value, kind).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

// Delete removes the token with id and value and reports whether a row went
// away. Of two concurrent calls for the same token only one sees true.
func (s *TokenStore) Delete(ctx context.Context, id, value string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ? AND value = ?", id, value).
		Delete(&models.Token{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteForUser drops every token of kind held by userID.
func (s *TokenStore) DeleteForUser(ctx context.Context, userID string, kind events.TokenKind) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, kind).
		Delete(&models.Token{})
	return res.RowsAffected, res.Error
}

// DeleteExpired drops tokens whose expiry is before now.
func (s *TokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.Token{})
	return res.RowsAffected, res.Error
}
