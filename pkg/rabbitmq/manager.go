package rabbitmq

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

var (
	ErrMissingURL     = errors.New("rabbitmq: broker url is required")
	ErrConnect        = errors.New("rabbitmq: connect failed")
	ErrClosed         = errors.New("rabbitmq: manager is closed")
	ErrTopology       = errors.New("rabbitmq: declare topology failed")
	ErrPublish        = errors.New("rabbitmq: publish failed")
	ErrConsume        = errors.New("rabbitmq: consume failed")
	ErrDeliveryClosed = errors.New("rabbitmq: delivery stream closed by broker")
)

// Channel is the subset of *amqp.Channel used by publishers and listeners.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	Cancel(consumer string, noWait bool) error
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)

// Manager owns the process-wide AMQP connection and the single channel shared
// by every Publisher and Listener. Channel calls are serialized by mu.
type Manager struct {
	conn   *amqp.Connection
	ch     Channel
	logger *slog.Logger

	mu     sync.Mutex
	closed bool

	declMu   sync.Mutex
	declared map[string]bool
}

// NewManager dials url and opens the shared channel. There is no retry; a
// failure here is meant to stop the process.
func NewManager(url string, logger *slog.Logger) (*Manager, error) {
	if url == "" {
		return nil, ErrMissingURL
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", ErrConnect, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: open channel: %v", ErrConnect, err)
	}
	m := NewManagerWithChannel(ch, logger)
	m.conn = conn
	return m, nil
}

// NewManagerWithChannel wraps an already open channel. Tests use it with the
// rabbitmqtest fake.
func NewManagerWithChannel(ch Channel, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		ch:       ch,
		logger:   logger,
		declared: make(map[string]bool),
	}
}

// Do runs fn with exclusive access to the shared channel.
func (m *Manager) Do(fn func(ch Channel) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return fn(m.ch)
}

// NotifyClose returns a channel that receives the connection close reason. It
// is nil for managers built over a bare Channel.
func (m *Manager) NotifyClose() <-chan *amqp.Error {
	if m.conn == nil {
		return nil
	}
	return m.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	err := m.ch.Close()
	if m.conn != nil {
		if cerr := m.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// DeclareExchange asserts a durable exchange once per manager. A failed
// declaration is not remembered, so the next caller tries again.
func (m *Manager) DeclareExchange(name, kind string) error {
	m.declMu.Lock()
	defer m.declMu.Unlock()

	key := "exchange/" + name
	if m.declared[key] {
		return nil
	}
	err := m.Do(func(ch Channel) error {
		return ch.ExchangeDeclare(name, kind, true, false, false, false, nil)
	})
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		return fmt.Errorf("%w: exchange %s: %v", ErrTopology, name, err)
	}
	m.declared[key] = true
	return nil
}

// DeclareQueue declares a durable queue bound to exchange under routingKey.
// When deadLetterExchange is set the queue dead-letters rejected messages to
// "<queue>.dead" through that direct exchange.
func (m *Manager) DeclareQueue(exchange, queue, routingKey, deadLetterExchange string) error {
	return m.Do(func(ch Channel) error {
		args := amqp.Table{}
		if deadLetterExchange != "" {
			dlq := DeadLetterQueueName(queue)
			if err := ch.ExchangeDeclare(deadLetterExchange, "direct", true, false, false, false, nil); err != nil {
				return fmt.Errorf("%w: dead-letter exchange %s: %v", ErrTopology, deadLetterExchange, err)
			}
			if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
				return fmt.Errorf("%w: dead-letter queue %s: %v", ErrTopology, dlq, err)
			}
			if err := ch.QueueBind(dlq, queue, deadLetterExchange, false, nil); err != nil {
				return fmt.Errorf("%w: bind dead-letter queue %s: %v", ErrTopology, dlq, err)
			}
			args["x-dead-letter-exchange"] = deadLetterExchange
			args["x-dead-letter-routing-key"] = queue
		}

		if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("%w: queue %s: %v", ErrTopology, queue, err)
		}
		if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
			return fmt.Errorf("%w: bind queue %s: %v", ErrTopology, queue, err)
		}
		return nil
	})
}

// QueueName derives the stable queue name for a service prefix and routing key.
func QueueName(prefix, routingKey string) string {
	return prefix + ":" + routingKey
}

// DeadLetterQueueName is where rejected messages from queue end up.
func DeadLetterQueueName(queue string) string {
	return queue + ".dead"
}

// DeadLetterExchangeName is the direct exchange that receives rejections for
// queues bound to exchange.
func DeadLetterExchangeName(exchange string) string {
	return exchange + ".dlx"
}
