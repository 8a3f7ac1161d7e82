package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"cashflow-service/internal/resilience"
)

// Publisher sends events to the topology's exchange. The connection is
// opened on first use and reopened after it dies; only one goroutine
// reconnects at a time.
type Publisher struct {
	dial     Dialer
	topology Topology
	policy   *resilience.Policy
	log      *logrus.Logger

	mu   sync.Mutex
	conn Connection
	ch   Channel
}

func NewPublisher(dial Dialer, topology Topology, policy *resilience.Policy, log *logrus.Logger) *Publisher {
	return &Publisher{
		dial:     dial,
		topology: topology,
		policy:   policy,
		log:      log,
	}
}

// Publish routes event by its logical type.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	return p.PublishTo(ctx, RoutingKey(event.EventType()), event)
}

// PublishTo sends event as a persistent JSON message. Transient failures are
// retried under the transport policy; an open circuit fails immediately with
// resilience.ErrCircuitOpen.
func (p *Publisher) PublishTo(ctx context.Context, routingKey string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event.EventType(), err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         event.EventType(),
		Body:         body,
	}

	err = p.policy.Do(ctx, func(ctx context.Context) error {
		ch, err := p.channel(ctx)
		if err != nil {
			return err
		}

		if err := ch.PublishWithContext(ctx, p.topology.Exchange, routingKey, false, false, msg); err != nil {
			p.discard(ch)
			return fmt.Errorf("failed to publish to %s: %w", p.topology.Exchange, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	p.log.WithFields(logrus.Fields{
		"exchange":    p.topology.Exchange,
		"routing_key": routingKey,
		"message_id":  msg.MessageId,
		"type":        msg.Type,
	}).Debug("event published")

	return nil
}

// channel returns the live channel, reconnecting under the lock if needed.
func (p *Publisher) channel(ctx context.Context) (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	if p.conn == nil || p.conn.IsClosed() {
		CloseQuietly(p.ch, p.conn)
		p.ch, p.conn = nil, nil

		conn, err := p.dial(ctx)
		if err != nil {
			return nil, err
		}

		p.conn = conn

		p.log.WithField("exchange", p.topology.Exchange).Info("publisher connected to RabbitMQ")
	} else {
		CloseQuietly(p.ch, nil)
		p.ch = nil
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch, p.topology); err != nil {
		CloseQuietly(ch, nil)
		return nil, err
	}

	p.ch = ch

	return ch, nil
}

// discard drops ch after a failed publish so the next attempt opens a fresh
// one. A channel replaced meanwhile by another goroutine is left alone.
func (p *Publisher) discard(ch Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != ch {
		return
	}

	CloseQuietly(p.ch, nil)
	p.ch = nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	CloseQuietly(p.ch, p.conn)
	p.ch, p.conn = nil, nil

	return nil
}
