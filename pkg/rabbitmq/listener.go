package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/CyberwizD/account-events/pkg/events"
	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// NackPolicy decides what happens to a message whose handler failed. Queues are
// always declared with a dead-letter exchange, so switching the policy on an
// existing queue never changes its arguments.
type NackPolicy int

const (
	// NackDeadLetter rejects without requeue; the queue forwards the message
	// to its dead-letter queue.
	NackDeadLetter NackPolicy = iota
	// NackRequeue puts the message straight back on the queue. A message that
	// can never succeed is redelivered forever.
	NackRequeue
)

func (p NackPolicy) String() string {
	if p == NackRequeue {
		return "requeue"
	}
	return "dead-letter"
}

// ParseNackPolicy accepts "dead-letter" or "requeue".
func ParseNackPolicy(s string) (NackPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dead-letter", "deadletter", "dlq":
		return NackDeadLetter, nil
	case "requeue":
		return NackRequeue, nil
	}
	return NackDeadLetter, fmt.Errorf("rabbitmq: unknown nack policy %q", s)
}

// ListenerConfig names where a listener consumes from.
type ListenerConfig struct {
	Exchange    string
	QueuePrefix string
	// Prefetch bounds unacknowledged messages and worker goroutines. Values
	// below 1 mean 1.
	Prefetch    int
	NackPolicy  NackPolicy
	ConsumerTag string
}

// Message carries broker metadata for the delivery being handled.
type Message struct {
	ID          string
	Subject     events.Subject
	Queue       string
	Redelivered bool
	Timestamp   time.Time
	Body        []byte
}

// Handler processes one decoded payload. Returning an error, or panicking,
// negatively acknowledges the message. Handlers may see the same message more
// than once and must tolerate it.
type Handler[T any] func(ctx context.Context, data T, msg Message) error

// Listener consumes one contract from a durable queue bound to an exchange.
type Listener[T any] struct {
	manager  *Manager
	contract events.Contract[T]
	cfg      ListenerConfig
	queue    string
	handler  Handler[T]
	opts     options
}

// NewListener creates a Listener. Nothing touches the broker until Listen.
func NewListener[T any](m *Manager, contract events.Contract[T], cfg ListenerConfig, handler Handler[T], opts ...Option) *Listener[T] {
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 1
	}
	queue := QueueName(cfg.QueuePrefix, contract.Subject().String())
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = queue + "/" + uuid.NewString()
	}
	return &Listener[T]{
		manager:  m,
		contract: contract,
		cfg:      cfg,
		queue:    queue,
		handler:  handler,
		opts:     buildOptions(m, opts),
	}
}

// Queue returns the queue this listener consumes from.
func (l *Listener[T]) Queue() string { return l.queue }

// Listen declares the exchange, queue and binding, then consumes until ctx is
// cancelled or the broker closes the delivery stream. In-flight messages are
// finished before Listen returns.
func (l *Listener[T]) Listen(ctx context.Context) error {
	subject := l.contract.Subject().String()
	if subject == "" {
		return fmt.Errorf("%w: contract has no subject", ErrTopology)
	}
	if err := l.manager.DeclareExchange(l.cfg.Exchange, ExchangeKind); err != nil {
		return err
	}
	dlx := DeadLetterExchangeName(l.cfg.Exchange)
	if err := l.manager.DeclareQueue(l.cfg.Exchange, l.queue, subject, dlx); err != nil {
		return err
	}

	var deliveries <-chan amqp.Delivery
	err := l.manager.Do(func(ch Channel) error {
		if err := ch.Qos(l.cfg.Prefetch, 0, false); err != nil {
			return err
		}
		d, err := ch.Consume(l.queue, l.cfg.ConsumerTag, false, false, false, false, nil)
		deliveries = d
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConsume, l.queue, err)
	}

	log := l.opts.logger.With(slog.String("queue", l.queue), slog.String("subject", subject))
	log.Info("listener started",
		slog.Int("prefetch", l.cfg.Prefetch),
		slog.String("nack_policy", l.cfg.NackPolicy.String()),
	)

	// Handlers keep running on shutdown until their message is settled.
	handlerCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < l.cfg.Prefetch; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				l.handle(handlerCtx, log, d)
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		if err := l.manager.Do(func(ch Channel) error { return ch.Cancel(l.cfg.ConsumerTag, false) }); err != nil {
			log.Warn("cancel consumer", slog.Any("error", err))
		}
		<-done
		log.Info("listener stopped")
		return nil
	case <-done:
		if ctx.Err() != nil {
			return nil
		}
		log.Error("delivery stream closed")
		return ErrDeliveryClosed
	}
}

func (l *Listener[T]) handle(ctx context.Context, log *slog.Logger, d amqp.Delivery) {
	start := time.Now()
	msg := Message{
		ID:          d.MessageId,
		Subject:     l.contract.Subject(),
		Queue:       l.queue,
		Redelivered: d.Redelivered,
		Timestamp:   d.Timestamp,
		Body:        d.Body,
	}
	log = log.With(slog.String("message_id", msg.ID), slog.Bool("redelivered", msg.Redelivered))

	var data T
	if err := json.Unmarshal(d.Body, &data); err != nil {
		log.Error("rejecting undecodable message", slog.Any("error", err))
		l.settle(log, d, OutcomeRejected, start)
		return
	}

	if err := l.invoke(ctx, data, msg); err != nil {
		log.Error("handler failed", slog.Any("error", err))
		outcome := OutcomeNack
		if l.cfg.NackPolicy == NackRequeue {
			outcome = OutcomeRequeue
		}
		l.settle(log, d, outcome, start)
		return
	}
	l.settle(log, d, OutcomeAck, start)
}

func (l *Listener[T]) invoke(ctx context.Context, data T, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return l.handler(ctx, data, msg)
}

func (l *Listener[T]) settle(log *slog.Logger, d amqp.Delivery, outcome string, start time.Time) {
	err := l.manager.Do(func(ch Channel) error {
		switch outcome {
		case OutcomeAck:
			return ch.Ack(d.DeliveryTag, false)
		case OutcomeRequeue:
			return ch.Nack(d.DeliveryTag, false, true)
		default:
			return ch.Nack(d.DeliveryTag, false, false)
		}
	})
	if err != nil {
		log.Error("settle delivery", slog.String("outcome", outcome), slog.Any("error", err))
	}
	l.opts.observer.ObserveDelivery(l.contract.Subject().String(), outcome, time.Since(start))
}
