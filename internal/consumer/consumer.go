package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"cashflow-service/internal/messaging"
	"cashflow-service/internal/processor"
)

// prefetch is fixed: one unacknowledged message per consumer keeps
// processing strictly sequential.
const prefetch = 1

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateDeclaringTopology
	StateConsuming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateDeclaringTopology:
		return "declaring-topology"
	case StateConsuming:
		return "consuming"
	}

	return "unknown"
}

// Processor settles one delivery.
type Processor interface {
	Process(ctx context.Context, d amqp.Delivery) processor.Outcome
}

type Config struct {
	Topology          messaging.Topology
	Tag               string
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
}

// Consumer owns one connection and one channel at a time. Every exit from
// the consuming state closes both before a new session is opened.
type Consumer struct {
	cfg       Config
	dial      messaging.Dialer
	processor Processor
	log       *logrus.Logger

	state     atomic.Int32
	processed atomic.Int64
}

func New(cfg Config, dial messaging.Dialer, p Processor, log *logrus.Logger) *Consumer {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}

	if cfg.ReconnectMaxDelay < cfg.ReconnectDelay {
		cfg.ReconnectMaxDelay = cfg.ReconnectDelay
	}

	return &Consumer{
		cfg:       cfg,
		dial:      dial,
		processor: p,
		log:       log,
	}
}

func (c *Consumer) State() State {
	return State(c.state.Load())
}

// Processed is the number of deliveries handled since start.
func (c *Consumer) Processed() int64 {
	return c.processed.Load()
}

// Healthy reports an error unless the consumer is attached to its queue.
func (c *Consumer) Healthy() error {
	if s := c.State(); s != StateConsuming {
		return fmt.Errorf("consumer is %s", s)
	}

	return nil
}

func (c *Consumer) setState(s State) {
	if State(c.state.Swap(int32(s))) != s {
		c.log.WithField("state", s.String()).Debug("consumer state changed")
	}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff
// after every failure. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.ReconnectDelay,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         c.cfg.ReconnectMaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	defer c.setState(StateDisconnected)

	for {
		consumed, err := c.session(ctx)
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			c.log.Info("consumer stopped")
			return nil
		}

		if consumed {
			b.Reset()
		}

		wait := b.NextBackOff()

		c.log.WithError(err).WithField("retry_in", wait).Warn("consumer disconnected, reconnecting")

		select {
		case <-ctx.Done():
			c.log.Info("consumer stopped")
			return nil
		case <-time.After(wait):
		}
	}
}

// session runs one connect, declare, consume cycle. consumed reports
// whether the session reached the consuming state.
func (c *Consumer) session(ctx context.Context) (consumed bool, err error) {
	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		return false, err
	}

	var ch messaging.Channel

	defer func() {
		messaging.CloseQuietly(ch, conn)
	}()

	ch, err = conn.Channel()
	if err != nil {
		return false, fmt.Errorf("failed to open channel: %w", err)
	}

	c.setState(StateDeclaringTopology)

	if err := messaging.DeclareConsumerTopology(ch, c.cfg.Topology); err != nil {
		return false, err
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return false, fmt.Errorf("failed to set QoS: %w", err)
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	deliveries, err := ch.Consume(
		c.cfg.Topology.Queue,
		c.cfg.Tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return false, fmt.Errorf("failed to start consuming: %w", err)
	}

	c.setState(StateConsuming)

	c.log.WithFields(logrus.Fields{
		"queue":    c.cfg.Topology.Queue,
		"exchange": c.cfg.Topology.Exchange,
		"binding":  c.cfg.Topology.BindingKey,
	}).Info("consuming from RabbitMQ")

	for {
		select {
		case <-ctx.Done():
			return true, nil

		case amqpErr := <-connClosed:
			return true, closeError("connection", amqpErr)

		case amqpErr := <-chClosed:
			return true, closeError("channel", amqpErr)

		case d, ok := <-deliveries:
			if !ok {
				return true, errors.New("delivery channel closed")
			}

			outcome := c.processor.Process(ctx, d)
			c.processed.Add(1)

			if outcome == processor.Abandoned {
				return true, nil
			}
		}
	}
}

func closeError(what string, amqpErr *amqp.Error) error {
	if amqpErr == nil {
		return fmt.Errorf("%s closed", what)
	}

	return fmt.Errorf("%s closed: %w", what, amqpErr)
}
