package rabbitmqtest

import (
	"fmt"
	"reflect"

	"github.com/streadway/amqp"
)

// Channel is one client channel on a Broker.
type Channel struct {
	broker     *Broker
	prefetch   int
	consumers  map[string]*consumer
	closed     bool
	publishErr error
}

// FailPublish makes every following Publish on this channel return err until
// it is called again with nil.
func (c *Channel) FailPublish(err error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.publishErr = err
}

func (c *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if existing, ok := b.exchanges[name]; ok && existing != kind {
		return fmt.Errorf("%w: exchange %s is %s, not %s", ErrPrecondition, name, existing, kind)
	}
	b.exchanges[name] = kind
	return nil
}

func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return amqp.Queue{}, ErrChannelClosed
	}
	if args == nil {
		args = amqp.Table{}
	}
	q, ok := b.queues[name]
	if !ok {
		q = &queue{name: name, args: args}
		b.queues[name] = q
	} else if !reflect.DeepEqual(q.args, args) {
		return amqp.Queue{}, fmt.Errorf("%w: queue %s redeclared with different arguments", ErrPrecondition, name)
	}
	return amqp.Queue{Name: name, Messages: len(q.messages), Consumers: len(q.consumers)}, nil
}

func (c *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if _, ok := b.exchanges[exchange]; !ok {
		return fmt.Errorf("%w: exchange %s", ErrNotFound, exchange)
	}
	if _, ok := b.queues[name]; !ok {
		return fmt.Errorf("%w: queue %s", ErrNotFound, name)
	}
	bd := binding{exchange: exchange, key: key, queue: name}
	for _, existing := range b.bindings {
		if existing == bd {
			return nil
		}
	}
	b.bindings = append(b.bindings, bd)
	return nil
}

func (c *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	c.prefetch = prefetchCount
	return nil
}

func (c *Channel) Consume(queueName, tag string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}
	q, ok := b.queues[queueName]
	if !ok {
		return nil, fmt.Errorf("%w: queue %s", ErrNotFound, queueName)
	}
	if _, taken := c.consumers[tag]; taken {
		return nil, fmt.Errorf("%w: %s", ErrConsumerTagInUse, tag)
	}
	prefetch := c.prefetch
	if prefetch < 1 {
		prefetch = 1024
	}
	cons := &consumer{
		tag:        tag,
		channel:    c,
		queue:      q,
		prefetch:   prefetch,
		deliveries: make(chan amqp.Delivery, prefetch),
	}
	c.consumers[tag] = cons
	q.consumers = append(q.consumers, cons)
	b.dispatch(q)
	return cons.deliveries, nil
}

func (c *Channel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.publishErr != nil {
		return c.publishErr
	}
	if _, ok := b.exchanges[exchange]; !ok {
		return fmt.Errorf("%w: exchange %s", ErrNotFound, exchange)
	}
	b.stats.Published++
	b.route(message{exchange: exchange, routingKey: key, pub: msg})
	return nil
}

func (c *Channel) Ack(tag uint64, multiple bool) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	return b.settle(tag, true, false)
}

func (c *Channel) Nack(tag uint64, multiple, requeue bool) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	return b.settle(tag, false, requeue)
}

// Reject makes Channel an amqp.Acknowledger, so Delivery.Ack works too.
func (c *Channel) Reject(tag uint64, requeue bool) error {
	return c.Nack(tag, false, requeue)
}

// Cancel stops deliveries to a consumer. Messages it already holds stay
// unacknowledged until settled or until the channel closes.
func (c *Channel) Cancel(tag string, noWait bool) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	cons, ok := c.consumers[tag]
	if !ok {
		return fmt.Errorf("%w: consumer %s", ErrNotFound, tag)
	}
	c.stopConsumer(cons)
	return nil
}

// Close cancels every consumer of the channel and requeues the messages they
// had not settled.
func (c *Channel) Close() error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, cons := range c.consumers {
		c.stopConsumer(cons)
	}
	touched := map[*queue]bool{}
	for tag, f := range b.unacked {
		if f.consumer.channel != c {
			continue
		}
		delete(b.unacked, tag)
		m := f.msg
		m.redelivered = true
		f.queue.messages = append([]message{m}, f.queue.messages...)
		touched[f.queue] = true
	}
	for q := range touched {
		b.dispatch(q)
	}
	return nil
}

func (c *Channel) stopConsumer(cons *consumer) {
	if cons.closed {
		return
	}
	cons.closed = true
	close(cons.deliveries)
	cons.queue.removeConsumer(cons)
	delete(c.consumers, cons.tag)
}
