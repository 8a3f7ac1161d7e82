package messaging

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	deadLetterExchangeSuffix = ".dlx"
	deadLetterSuffix         = ".dead"

	queueTypeQuorum = "quorum"
)

// Topology names the exchange a producer publishes to and, for consumers,
// the queue bound to it together with its dead-letter route.
type Topology struct {
	Exchange     string
	ExchangeKind string
	Queue        string
	BindingKey   string

	// QueueType is "quorum" or "classic". Quorum queues enforce
	// MaxDeliveries on the broker side as well.
	QueueType     string
	MaxDeliveries int
}

func (t Topology) DeadLetterExchange() string {
	return t.Exchange + deadLetterExchangeSuffix
}

func (t Topology) DeadLetterRoutingKey() string {
	return t.BindingKey + deadLetterSuffix
}

func (t Topology) DeadLetterQueue() string {
	return t.Queue + deadLetterSuffix
}

func (t Topology) exchangeKind() string {
	if t.ExchangeKind == "" {
		return amqp.ExchangeTopic
	}

	return t.ExchangeKind
}

// QueueArgs attaches the dead-letter route so messages rejected without
// requeue are redirected instead of dropped.
func (t Topology) QueueArgs() amqp.Table {
	args := amqp.Table{
		"x-dead-letter-exchange":    t.DeadLetterExchange(),
		"x-dead-letter-routing-key": t.DeadLetterRoutingKey(),
	}

	if t.QueueType == queueTypeQuorum {
		args["x-queue-type"] = queueTypeQuorum

		if t.MaxDeliveries > 0 {
			args["x-delivery-limit"] = t.MaxDeliveries
		}
	}

	return args
}

// DeclareExchange declares the durable exchange. Declaration is idempotent.
func DeclareExchange(ch Channel, t Topology) error {
	if err := ch.ExchangeDeclare(
		t.Exchange,
		t.exchangeKind(),
		true,  // durable
		false, // delete when unused
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", t.Exchange, err)
	}

	return nil
}

// DeclareConsumerTopology declares the exchange, the dead-letter exchange
// and queue, and the durable work queue bound to the exchange.
func DeclareConsumerTopology(ch Channel, t Topology) error {
	if err := DeclareExchange(ch, t); err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(t.DeadLetterExchange(), amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange %s: %w", t.DeadLetterExchange(), err)
	}

	if _, err := ch.QueueDeclare(t.DeadLetterQueue(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue %s: %w", t.DeadLetterQueue(), err)
	}

	if err := ch.QueueBind(t.DeadLetterQueue(), t.DeadLetterRoutingKey(), t.DeadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	if _, err := ch.QueueDeclare(
		t.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		t.QueueArgs(),
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", t.Queue, err)
	}

	if err := ch.QueueBind(t.Queue, t.BindingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s to %s: %w", t.Queue, t.Exchange, err)
	}

	return nil
}
