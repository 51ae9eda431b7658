package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/CyberwizD/account-events/pkg/events"
	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// ExchangeKind is the exchange type asserted by publishers and listeners.
const ExchangeKind = "topic"

// Option configures a Publisher or Listener.
type Option func(*options)

type options struct {
	observer Observer
	logger   *slog.Logger
}

// WithObserver reports publishes and deliveries to o.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		if o != nil {
			opts.observer = o
		}
	}
}

// WithLogger overrides the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(opts *options) {
		if l != nil {
			opts.logger = l
		}
	}
}

func buildOptions(m *Manager, opts []Option) options {
	o := options{observer: nopObserver{}, logger: m.logger}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Publisher sends payloads of one contract to a named exchange.
type Publisher[T any] struct {
	manager  *Manager
	exchange string
	contract events.Contract[T]
	opts     options
}

// NewPublisher creates a Publisher bound to exchange and contract.
func NewPublisher[T any](m *Manager, exchange string, contract events.Contract[T], opts ...Option) *Publisher[T] {
	return &Publisher[T]{
		manager:  m,
		exchange: exchange,
		contract: contract,
		opts:     buildOptions(m, opts),
	}
}

// Publish makes exactly one send attempt. It does not wait for the broker to
// confirm storage, and it never retries.
func (p *Publisher[T]) Publish(ctx context.Context, data T) (err error) {
	subject := p.contract.Subject().String()
	defer func() { p.opts.observer.ObservePublish(subject, err) }()

	if subject == "" {
		return fmt.Errorf("%w: contract has no subject", ErrPublish)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPublish, subject, err)
	}
	if err := p.manager.DeclareExchange(p.exchange, ExchangeKind); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPublish, subject, err)
	}

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %s: encode: %v", ErrPublish, subject, err)
	}

	msg := amqp.Publishing{
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		DeliveryMode:    amqp.Persistent,
		MessageId:       uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		Type:            subject,
		Body:            body,
	}
	err = p.manager.Do(func(ch Channel) error {
		return ch.Publish(p.exchange, subject, false, false, msg)
	})
	if err != nil {
		p.opts.logger.Error("publish failed",
			slog.String("exchange", p.exchange),
			slog.String("subject", subject),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %s: %v", ErrPublish, subject, err)
	}

	p.opts.logger.Debug("event published",
		slog.String("exchange", p.exchange),
		slog.String("subject", subject),
		slog.String("message_id", msg.MessageId),
	)
	return nil
}
