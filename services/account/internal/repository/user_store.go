package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CyberwizD/account-events/services/account/internal/models"
	"gorm.io/gorm"
)

// UserStore stores and retrieves users.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// WithTx returns a store whose queries run inside tx.
func (s *UserStore) WithTx(tx *gorm.DB) *UserStore {
	return &UserStore{db: tx}
}

// Create inserts a user. A taken email yields ErrDuplicate.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %s", ErrDuplicate, user.Email)
		}
		return err
	}
	return nil
}

// GetByID loads a user by primary key.
func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

// GetByEmail loads a user by email address.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *UserStore) first(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// MarkEmailVerified stamps the verification time once. Later calls leave the
// first timestamp in place.
func (s *UserStore) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND email_verified_at IS NULL", id).
		Update("email_verified_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		_, err := s.GetByID(ctx, id)
		return err
	}
	return nil
}

// UpdatePasswordHash replaces the stored bcrypt hash.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
