package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CyberwizD/account-events/pkg/events"
	"github.com/CyberwizD/account-events/pkg/rabbitmq"
	"github.com/CyberwizD/account-events/services/notification/internal/mailer"
)

// ProcessedStore remembers broker messages that already produced a mail.
type ProcessedStore interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) (bool, error)
}

// Notifier turns account events into emails.
type Notifier struct {
	sender    mailer.Sender
	processed ProcessedStore
	baseURL   string
	logger    *slog.Logger
}

// NewNotifier creates a Notifier. Links in emails point at baseURL.
func NewNotifier(sender mailer.Sender, processed ProcessedStore, baseURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender:    sender,
		processed: processed,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// VerificationLink is the page that redeems an email verification token.
func (n *Notifier) VerificationLink(token string) string {
	return n.baseURL + "/verify-email/" + token
}

// ResetLink is the page that redeems a password reset token.
func (n *Notifier) ResetLink(token string) string {
	return n.baseURL + "/reset-password/" + token
}

// HandleTokenCreated mails the verification or reset link. Unknown token
// types are logged and dropped.
func (n *Notifier) HandleTokenCreated(ctx context.Context, data events.TokenCreatedData, msg rabbitmq.Message) error {
	var (
		m   mailer.Message
		err error
	)
	switch data.Type {
	case events.TokenEmailVerification:
		m, err = mailer.VerificationEmail(data.Email, n.VerificationLink(data.Token))
	case events.TokenResetPassword:
		m, err = mailer.PasswordResetEmail(data.Email, n.ResetLink(data.Token))
	default:
		n.logger.Warn("unknown token type",
			slog.String("message_id", msg.ID),
			slog.String("type", string(data.Type)),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("render %s email: %w", data.Type, err)
	}
	return n.deliver(ctx, msg, m)
}

// HandleUserCreated sends the welcome mail.
func (n *Notifier) HandleUserCreated(ctx context.Context, data events.UserCreatedData, msg rabbitmq.Message) error {
	m, err := mailer.WelcomeEmail(data.Email, data.FullName)
	if err != nil {
		return fmt.Errorf("render welcome email: %w", err)
	}
	return n.deliver(ctx, msg, m)
}

// deliver sends m unless msg was handled before. The mark is written only
// after a successful send. A failed send is retried only under NackRequeue;
// under NackDeadLetter the message is parked unmarked in the dead-letter
// queue until an operator replays it.
func (n *Notifier) deliver(ctx context.Context, msg rabbitmq.Message, m mailer.Message) error {
	log := n.logger.With(
		slog.String("message_id", msg.ID),
		slog.String("subject", msg.Subject.String()),
	)

	done, err := n.processed.IsProcessed(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("check processed: %w", err)
	}
	if done {
		log.Info("skipping already processed message")
		return nil
	}

	if err := n.sender.Send(ctx, m); err != nil {
		return err
	}

	// A lost mark can only cause a duplicate mail.
	if _, err := n.processed.MarkProcessed(ctx, msg.ID); err != nil {
		log.Warn("could not mark message processed", slog.Any("error", err))
	}
	log.Info("email sent", slog.String("to", m.To))
	return nil
}
