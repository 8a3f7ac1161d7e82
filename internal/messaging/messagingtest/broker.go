// Package messagingtest provides an in-memory stand-in for a RabbitMQ broker
// that satisfies the messaging connection interfaces.
package messagingtest

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"cashflow-service/internal/messaging"
)

type Message struct {
	Exchange string
	Key      string
	amqp.Publishing
}

type Binding struct {
	Queue    string
	Key      string
	Exchange string
}

// Ack records how a delivery was settled.
type Ack struct {
	Tag     uint64
	Ack     bool
	Requeue bool
}

type Broker struct {
	mu sync.Mutex

	dialErr      error
	dialFailures int
	publishErr   error
	pubFailures  int

	dials     int
	exchanges map[string]string
	queues    map[string]amqp.Table
	bindings  []Binding
	published []Message
	prefetch  int
	acks      []Ack
	nextTag   uint64

	conns    []*Conn
	consumer chan amqp.Delivery
}

func NewBroker() *Broker {
	return &Broker{
		exchanges: map[string]string{},
		queues:    map[string]amqp.Table{},
	}
}

// FailDials makes the next n dials return err.
func (b *Broker) FailDials(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dialFailures, b.dialErr = n, err
}

// FailPublishes makes the next n publishes return err.
func (b *Broker) FailPublishes(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pubFailures, b.publishErr = n, err
}

func (b *Broker) Dial(ctx context.Context) (messaging.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if b.dialFailures > 0 {
		b.dialFailures--
		return nil, b.dialErr
	}

	c := &Conn{broker: b}
	b.conns = append(b.conns, c)

	return c, nil
}

func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dials
}

func (b *Broker) Connections() []*Conn {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]*Conn(nil), b.conns...)
}

// Drop kills every open connection as a network failure would.
func (b *Broker) Drop() {
	for _, c := range b.Connections() {
		c.shutdown(&amqp.Error{Code: amqp.ConnectionForced, Reason: "connection reset", Server: true, Recover: true})
	}
}

func (b *Broker) Exchange(name string) (kind string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kind, ok = b.exchanges[name]

	return kind, ok
}

func (b *Broker) Queue(name string) (args amqp.Table, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	args, ok = b.queues[name]

	return args, ok
}

func (b *Broker) Bindings() []Binding {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Binding(nil), b.bindings...)
}

func (b *Broker) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Message(nil), b.published...)
}

func (b *Broker) Prefetch() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.prefetch
}

func (b *Broker) Acks() []Ack {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Ack(nil), b.acks...)
}

// Consuming reports whether a consumer is attached.
func (b *Broker) Consuming() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.consumer != nil
}

// Deliver hands a message to the attached consumer and returns its delivery
// tag. It reports false when no consumer is attached.
func (b *Broker) Deliver(body []byte, headers amqp.Table) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consumer == nil {
		return 0, false
	}

	b.nextTag++

	b.consumer <- amqp.Delivery{
		Acknowledger: acknowledger{b},
		DeliveryTag:  b.nextTag,
		Headers:      headers,
		ContentType:  "application/json",
		Body:         body,
	}

	return b.nextTag, true
}

type acknowledger struct {
	b *Broker
}

func (a acknowledger) record(ack Ack) error {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()

	a.b.acks = append(a.b.acks, ack)

	return nil
}

func (a acknowledger) Ack(tag uint64, _ bool) error {
	return a.record(Ack{Tag: tag, Ack: true})
}

func (a acknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	return a.record(Ack{Tag: tag, Requeue: requeue})
}

func (a acknowledger) Reject(tag uint64, requeue bool) error {
	return a.record(Ack{Tag: tag, Requeue: requeue})
}

type Conn struct {
	broker *Broker

	mu       sync.Mutex
	closed   bool
	notify   []chan *amqp.Error
	channels []*Chan
}

func (c *Conn) Channel() (messaging.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, amqp.ErrClosed
	}

	ch := &Chan{broker: c.broker}
	c.channels = append(c.channels, ch)

	return ch, nil
}

func (c *Conn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		close(receiver)
		return receiver
	}

	c.notify = append(c.notify, receiver)

	return receiver
}

func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *Conn) Close() error {
	if !c.shutdown(nil) {
		return amqp.ErrClosed
	}

	return nil
}

func (c *Conn) shutdown(reason *amqp.Error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	c.closed = true

	for _, ch := range c.channels {
		ch.shutdown(reason)
	}

	notifyAndClose(c.notify, reason)

	return true
}

type Chan struct {
	broker *Broker

	mu         sync.Mutex
	closed     bool
	notify     []chan *amqp.Error
	deliveries chan amqp.Delivery
}

func (ch *Chan) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	if ch.IsClosed() {
		return amqp.ErrClosed
	}

	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	ch.broker.exchanges[name] = kind

	return nil
}

func (ch *Chan) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	if ch.IsClosed() {
		return amqp.Queue{}, amqp.ErrClosed
	}

	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	ch.broker.queues[name] = args

	return amqp.Queue{Name: name}, nil
}

func (ch *Chan) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	if ch.IsClosed() {
		return amqp.ErrClosed
	}

	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	ch.broker.bindings = append(ch.broker.bindings, Binding{Queue: name, Key: key, Exchange: exchange})

	return nil
}

func (ch *Chan) Qos(prefetchCount, _ int, _ bool) error {
	if ch.IsClosed() {
		return amqp.ErrClosed
	}

	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	ch.broker.prefetch = prefetchCount

	return nil
}

func (ch *Chan) Consume(_, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return nil, amqp.ErrClosed
	}

	ch.deliveries = make(chan amqp.Delivery, 16)

	ch.broker.mu.Lock()
	ch.broker.consumer = ch.deliveries
	ch.broker.mu.Unlock()

	return ch.deliveries, nil
}

func (ch *Chan) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if ch.IsClosed() {
		return amqp.ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	if ch.broker.pubFailures > 0 {
		ch.broker.pubFailures--
		return ch.broker.publishErr
	}

	ch.broker.published = append(ch.broker.published, Message{Exchange: exchange, Key: key, Publishing: msg})

	return nil
}

func (ch *Chan) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		close(receiver)
		return receiver
	}

	ch.notify = append(ch.notify, receiver)

	return receiver
}

func (ch *Chan) IsClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.closed
}

func (ch *Chan) Close() error {
	if !ch.shutdown(nil) {
		return amqp.ErrClosed
	}

	return nil
}

func (ch *Chan) shutdown(reason *amqp.Error) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return false
	}

	ch.closed = true

	if ch.deliveries != nil {
		ch.broker.mu.Lock()
		if ch.broker.consumer == ch.deliveries {
			ch.broker.consumer = nil
		}
		close(ch.deliveries)
		ch.broker.mu.Unlock()
	}

	notifyAndClose(ch.notify, reason)

	return true
}

func notifyAndClose(receivers []chan *amqp.Error, reason *amqp.Error) {
	for _, r := range receivers {
		if reason != nil {
			select {
			case r <- reason:
			default:
			}
		}

		close(r)
	}
}
