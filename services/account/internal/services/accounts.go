package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CyberwizD/account-events/pkg/events"
	"github.com/CyberwizD/account-events/services/account/internal/models"
	"github.com/CyberwizD/account-events/services/account/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailInUse         = errors.New("email in use")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrUserNotFound       = errors.New("user not found")
	// ErrNotify means the change was stored but its event could not be sent.
	ErrNotify = errors.New("event could not be published")
)

// Publisher sends one kind of event. rabbitmq.Publisher satisfies it.
type Publisher[T any] interface {
	Publish(ctx context.Context, data T) error
}

// SignUpInput is a validated sign-up request.
type SignUpInput struct {
	Email       string
	Password    string
	FullName    string
	Role        events.Role
	Gender      events.Gender
	DOB         time.Time
	PhoneNumber *string
}

// AccountOption configures an AccountService.
type AccountOption func(*AccountService)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) AccountOption {
	return func(s *AccountService) { s.bcryptCost = cost }
}

// WithAccountClock replaces time.Now for verification timestamps.
func WithAccountClock(now func() time.Time) AccountOption {
	return func(s *AccountService) {
		if now != nil {
			s.now = now
		}
	}
}

// AccountService implements sign-up, sign-in and the token-backed flows.
type AccountService struct {
	db           *gorm.DB
	users        *repository.UserStore
	tokens       *TokenService
	userCreated  Publisher[events.UserCreatedData]
	tokenCreated Publisher[events.TokenCreatedData]
	logger       *slog.Logger
	bcryptCost   int
	now          func() time.Time
}

// NewAccountService wires the account flows together.
func NewAccountService(
	db *gorm.DB,
	tokens *TokenService,
	userCreated Publisher[events.UserCreatedData],
	tokenCreated Publisher[events.TokenCreatedData],
	logger *slog.Logger,
	opts ...AccountOption,
) *AccountService {
	s := &AccountService{
		db:           db,
		users:        repository.NewUserStore(db),
		tokens:       tokens,
		userCreated:  userCreated,
		tokenCreated: tokenCreated,
		logger:       logger,
		bcryptCost:   bcrypt.DefaultCost,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp stores a new unverified user, issues an email verification token and
// announces both. Publish failures are logged; the user is already stored.
func (s *AccountService) SignUp(ctx context.Context, in SignUpInput) (*models.User, error) {
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = events.RolePatient
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     in.FullName,
		Role:         role,
		DOB:          in.DOB,
		Gender:       in.Gender,
		PhoneNumber:  in.PhoneNumber,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	log := s.logger.With(slog.String("user_id", user.ID))
	if err := s.sendToken(ctx, user, events.TokenEmailVerification); err != nil {
		if !errors.Is(err, ErrNotify) {
			return nil, err
		}
		log.Warn("verification token not announced", slog.Any("error", err))
	}
	if err := s.userCreated.Publish(ctx, user.CreatedEvent()); err != nil {
		log.Warn("user:created not published", slog.Any("error", err))
	}
	log.Info("user signed up")
	return user, nil
}

// SignIn checks credentials. An unverified user gets a fresh verification
// token and ErrEmailNotVerified.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Verified() {
		if err := s.sendToken(ctx, user, events.TokenEmailVerification); err != nil {
			if !errors.Is(err, ErrNotify) {
				return nil, err
			}
			s.logger.Warn("verification token not announced",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
		}
		return nil, ErrEmailNotVerified
	}
	return user, nil
}

// VerifyEmail redeems an email verification token and marks the user verified
// in the same transaction. A user verified earlier keeps the first timestamp.
func (s *AccountService) VerifyEmail(ctx context.Context, value string) (*models.User, error) {
	var userID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := s.tokens.InTx(tx).Redeem(ctx, value, events.TokenEmailVerification)
		if err != nil {
			return err
		}
		userID = id
		return s.markVerified(ctx, s.users.WithTx(tx), id)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("email verified", slog.String("user_id", userID))
	return s.GetUser(ctx, userID)
}

func (s *AccountService) markVerified(ctx context.Context, users *repository.UserStore, id string) error {
	if err := users.MarkEmailVerified(ctx, id, s.now().UTC()); err != nil {
		// A token whose user is gone is as good as no token.
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// ForgotPassword issues a reset token for email and announces it. Unlike
// sign-up, a publish failure is returned because the token is useless unsent.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}
	return s.sendToken(ctx, user, events.TokenResetPassword)
}

// ResetPassword redeems a reset token and stores the new password in one
// transaction. Other outstanding reset tokens of the user are revoked.
func (s *AccountService) ResetPassword(ctx context.Context, value, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tokens := s.tokens.InTx(tx)
		userID, err := tokens.Redeem(ctx, value, events.TokenResetPassword)
		if err != nil {
			return err
		}
		if err := s.users.WithTx(tx).UpdatePasswordHash(ctx, userID, hash); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTokenNotFound
			}
			return fmt.Errorf("update password: %w", err)
		}
		return tokens.RevokeAll(ctx, userID, events.TokenResetPassword)
	})
}

// ChangePassword replaces the password of a signed-in user.
func (s *AccountService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// GetUser loads a user by id.
func (s *AccountService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// sendToken issues a token of kind and publishes token:created. A publish
// failure is wrapped in ErrNotify.
func (s *AccountService) sendToken(ctx context.Context, user *models.User, kind events.TokenKind) error {
	tok, err := s.tokens.Issue(ctx, user.ID, kind)
	if err != nil {
		return fmt.Errorf("issue %s token: %w", kind, err)
	}
	err = s.tokenCreated.Publish(ctx, events.TokenCreatedData{
		Email: user.Email,
		Type:  kind,
		Token: tok.Value,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotify, err)
	}
	return nil
}

func (s *AccountService) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}
