// Package rabbitmqtest provides an in-process stand-in for a RabbitMQ broker.
//
// Broker keeps exchanges, queues and bindings in memory and implements the
// parts of AMQP 0-9-1 the services rely on: direct, topic and fanout routing,
// per-consumer prefetch, round-robin between competing consumers,
// ack/nack with requeue and dead-lettering through x-dead-letter-exchange.
// Every Channel it hands out satisfies rabbitmq.Channel.
package rabbitmqtest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/streadway/amqp"
)

var (
	ErrChannelClosed    = errors.New("rabbitmqtest: channel closed")
	ErrNotFound         = errors.New("rabbitmqtest: not found")
	ErrPrecondition     = errors.New("rabbitmqtest: precondition failed")
	ErrUnknownDelivery  = errors.New("rabbitmqtest: unknown delivery tag")
	ErrConsumerTagInUse = errors.New("rabbitmqtest: consumer tag in use")
)

// Stats counts settled and published messages since the broker was created.
type Stats struct {
	Published    int
	Acked        int
	Nacked       int
	Requeued     int
	DeadLettered int
}

// Broker is safe for concurrent use.
type Broker struct {
	mu        sync.Mutex
	exchanges map[string]string
	queues    map[string]*queue
	bindings  []binding
	unacked   map[uint64]*inflight
	nextTag   uint64
	stats     Stats
	channels  []*Channel
}

type binding struct {
	exchange string
	key      string
	queue    string
}

type message struct {
	exchange    string
	routingKey  string
	pub         amqp.Publishing
	redelivered bool
}

type queue struct {
	name      string
	args      amqp.Table
	messages  []message
	consumers []*consumer
	next      int
}

type consumer struct {
	tag        string
	channel    *Channel
	queue      *queue
	prefetch   int
	inflight   int
	deliveries chan amqp.Delivery
	closed     bool
}

type inflight struct {
	msg      message
	queue    *queue
	consumer *consumer
}

// New returns an empty broker.
func New() *Broker {
	return &Broker{
		exchanges: make(map[string]string),
		queues:    make(map[string]*queue),
		unacked:   make(map[uint64]*inflight),
	}
}

// Channel opens a new channel. Like a real connection, every process (or test
// instance) should use its own.
func (b *Broker) Channel() *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := &Channel{broker: b, consumers: make(map[string]*consumer)}
	b.channels = append(b.channels, ch)
	return ch
}

// Stats returns a snapshot of the counters.
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Ready returns the number of messages waiting in queue.
func (b *Broker) Ready(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queueName]
	if !ok {
		return 0
	}
	return len(q.messages)
}

// Bodies returns copies of the bodies waiting in queue, oldest first.
func (b *Broker) Bodies(queueName string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queueName]
	if !ok {
		return nil
	}
	out := make([][]byte, 0, len(q.messages))
	for _, m := range q.messages {
		out = append(out, append([]byte(nil), m.pub.Body...))
	}
	return out
}

// Unacked returns the number of delivered but unsettled messages.
func (b *Broker) Unacked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.unacked)
}

// ExchangeKind returns the declared kind of an exchange.
func (b *Broker) ExchangeKind(name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kind, ok := b.exchanges[name]
	return kind, ok
}

// QueueArgs returns the arguments a queue was declared with.
func (b *Broker) QueueArgs(name string) (amqp.Table, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return nil, false
	}
	return q.args, true
}

// Bound reports whether queue is bound to exchange under key.
func (b *Broker) Bound(exchange, key, queueName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bd := range b.bindings {
		if bd == (binding{exchange: exchange, key: key, queue: queueName}) {
			return true
		}
	}
	return false
}

// route must be called with mu held.
func (b *Broker) route(m message) {
	kind, ok := b.exchanges[m.exchange]
	if !ok {
		return
	}
	for _, bd := range b.bindings {
		if bd.exchange != m.exchange || !matches(kind, bd.key, m.routingKey) {
			continue
		}
		q := b.queues[bd.queue]
		q.messages = append(q.messages, m)
		b.dispatch(q)
	}
}

// dispatch hands ready messages to consumers with spare prefetch capacity.
// Sends never block: a consumer's buffer is as large as its prefetch.
func (b *Broker) dispatch(q *queue) {
	for len(q.messages) > 0 {
		c := q.pick()
		if c == nil {
			return
		}
		m := q.messages[0]
		q.messages = q.messages[1:]

		b.nextTag++
		tag := b.nextTag
		c.inflight++
		b.unacked[tag] = &inflight{msg: m, queue: q, consumer: c}
		c.deliveries <- amqp.Delivery{
			Acknowledger:    c.channel,
			Headers:         m.pub.Headers,
			ContentType:     m.pub.ContentType,
			ContentEncoding: m.pub.ContentEncoding,
			DeliveryMode:    m.pub.DeliveryMode,
			MessageId:       m.pub.MessageId,
			Timestamp:       m.pub.Timestamp,
			Type:            m.pub.Type,
			ConsumerTag:     c.tag,
			DeliveryTag:     tag,
			Redelivered:     m.redelivered,
			Exchange:        m.exchange,
			RoutingKey:      m.routingKey,
			Body:            m.pub.Body,
		}
	}
}

func (q *queue) pick() *consumer {
	n := len(q.consumers)
	for i := 0; i < n; i++ {
		c := q.consumers[(q.next+i)%n]
		if !c.closed && c.inflight < c.prefetch {
			q.next = (q.next + i + 1) % n
			return c
		}
	}
	return nil
}

func (q *queue) removeConsumer(c *consumer) {
	for i, other := range q.consumers {
		if other == c {
			q.consumers = append(q.consumers[:i], q.consumers[i+1:]...)
			break
		}
	}
	if q.next >= len(q.consumers) {
		q.next = 0
	}
}

// settle must be called with mu held.
func (b *Broker) settle(tag uint64, ack, requeue bool) error {
	f, ok := b.unacked[tag]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDelivery, tag)
	}
	delete(b.unacked, tag)
	f.consumer.inflight--

	switch {
	case ack:
		b.stats.Acked++
	case requeue:
		b.stats.Nacked++
		b.stats.Requeued++
		m := f.msg
		m.redelivered = true
		f.queue.messages = append([]message{m}, f.queue.messages...)
	default:
		b.stats.Nacked++
		b.deadLetter(f.queue, f.msg)
	}
	b.dispatch(f.queue)
	return nil
}

func (b *Broker) deadLetter(q *queue, m message) {
	dlx, ok := q.args["x-dead-letter-exchange"].(string)
	if !ok {
		return
	}
	key := m.routingKey
	if k, ok := q.args["x-dead-letter-routing-key"].(string); ok && k != "" {
		key = k
	}
	b.stats.DeadLettered++
	b.route(message{exchange: dlx, routingKey: key, pub: m.pub})
}

func matches(kind, pattern, key string) bool {
	switch kind {
	case "fanout":
		return true
	case "topic":
		return topicMatch(strings.Split(pattern, "."), strings.Split(key, "."))
	default:
		return pattern == key
	}
}

func topicMatch(pattern, words []string) bool {
	if len(pattern) == 0 {
		return len(words) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(words); i++ {
			if topicMatch(pattern[1:], words[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(words) > 0 && topicMatch(pattern[1:], words[1:])
	default:
		return len(words) > 0 && pattern[0] == words[0] && topicMatch(pattern[1:], words[1:])
	}
}
