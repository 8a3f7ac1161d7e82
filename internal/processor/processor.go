package processor

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"cashflow-service/internal/ledger"
)

const deliveryCountHeader = "x-delivery-count"

// Handler consolidates one entry-created event. It must be idempotent:
// messages are redelivered after failures and restarts.
type Handler interface {
	HandleEntryCreated(ctx context.Context, event ledger.EntryCreatedEvent) error
}

// Outcome is how a delivery was settled.
type Outcome int

const (
	// Acked: processed and removed from the queue.
	Acked Outcome = iota
	// Requeued: handler failed, the broker will redeliver.
	Requeued
	// DeadLettered: poison payload or redelivery budget spent.
	DeadLettered
	// Abandoned: shutdown interrupted the handler; left unsettled so the
	// broker redelivers it once the channel closes.
	Abandoned
)

func (o Outcome) String() string {
	switch o {
	case Acked:
		return "acked"
	case Requeued:
		return "requeued"
	case DeadLettered:
		return "dead-lettered"
	case Abandoned:
		return "abandoned"
	}

	return "unknown"
}

type Processor struct {
	handler       Handler
	timeout       time.Duration
	maxDeliveries int
	log           *logrus.Logger
}

// New returns a Processor. maxDeliveries bounds how often a failing message
// is delivered before it is dead-lettered; zero means unbounded.
func New(handler Handler, timeout time.Duration, maxDeliveries int, log *logrus.Logger) *Processor {
	return &Processor{
		handler:       handler,
		timeout:       timeout,
		maxDeliveries: maxDeliveries,
		log:           log,
	}
}

// Process handles one delivery and settles it:
//
//	invalid payload      -> nack, no requeue (dead-letter)
//	handler error        -> nack, requeue (dead-letter once the budget is spent)
//	success              -> ack
//
// Nothing is settled once ctx is cancelled.
func (p *Processor) Process(ctx context.Context, d amqp.Delivery) Outcome {
	fields := logrus.Fields{
		"delivery_tag": d.DeliveryTag,
		"message_id":   d.MessageId,
		"redelivered":  d.Redelivered,
	}

	event, err := ledger.DecodeEntryCreatedEvent(d.Body)
	if err != nil {
		p.log.WithFields(fields).WithError(err).WithField("body", string(d.Body)).
			Error("invalid message, dead-lettering")

		return p.nack(d, false, DeadLettered, fields)
	}

	fields["entry_id"] = event.EntryID
	fields["date"] = event.Date.Format(time.DateOnly)

	err = p.handle(ctx, event)

	if ctx.Err() != nil {
		p.log.WithFields(fields).Warn("shutdown while handling message, leaving it for redelivery")
		return Abandoned
	}

	if err != nil {
		attempts := deliveryCount(d.Headers) + 1
		fields["attempt"] = attempts

		if p.maxDeliveries > 0 && attempts >= p.maxDeliveries {
			p.log.WithFields(fields).WithError(err).Error("handler failed on last delivery, dead-lettering")
			return p.nack(d, false, DeadLettered, fields)
		}

		p.log.WithFields(fields).WithError(err).Warn("handler failed, requeueing")

		return p.nack(d, true, Requeued, fields)
	}

	if err := d.Ack(false); err != nil {
		p.log.WithFields(fields).WithError(err).Warn("failed to ack message")
	}

	p.log.WithFields(fields).Debug("message processed")

	return Acked
}

func (p *Processor) handle(ctx context.Context, event ledger.EntryCreatedEvent) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err := p.handler.HandleEntryCreated(ctx, event)
	if errors.Is(err, context.DeadlineExceeded) {
		p.log.WithField("timeout", p.timeout).Warn("handler timed out")
	}

	return err
}

func (p *Processor) nack(d amqp.Delivery, requeue bool, outcome Outcome, fields logrus.Fields) Outcome {
	if err := d.Nack(false, requeue); err != nil {
		p.log.WithFields(fields).WithError(err).Warn("failed to nack message")
	}

	return outcome
}

// deliveryCount reads the number of earlier deliveries that quorum queues
// attach to redelivered messages.
func deliveryCount(headers amqp.Table) int {
	switch v := headers[deliveryCountHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	}

	return 0
}
