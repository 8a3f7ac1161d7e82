package messaging

import (
	"context"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel the service uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Connection is the part of *amqp.Connection the service uses.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Dialer opens a broker connection. It must give up when ctx is done.
type Dialer func(ctx context.Context) (Connection, error)

type connection struct {
	*amqp.Connection
}

func (c connection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}

	return ch, nil
}

// NewDialer dials url with the given heartbeat. The TCP dial and the AMQP
// handshake are bounded by ctx.
func NewDialer(url string, heartbeat time.Duration) Dialer {
	return func(ctx context.Context) (Connection, error) {
		cfg := amqp.Config{
			Heartbeat: heartbeat,
			Locale:    "en_US",
			Dial: func(network, addr string) (net.Conn, error) {
				var d net.Dialer

				conn, err := d.DialContext(ctx, network, addr)
				if err != nil {
					return nil, err
				}

				if deadline, ok := ctx.Deadline(); ok {
					// Cleared by amqp091 once the handshake completes.
					if err := conn.SetDeadline(deadline); err != nil {
						conn.Close()
						return nil, err
					}
				}

				return conn, nil
			},
		}

		conn, err := amqp.DialConfig(url, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
		}

		return connection{conn}, nil
	}
}

// CloseQuietly releases stale handles; errors from already dead handles
// are expected and dropped.
func CloseQuietly(ch Channel, conn Connection) {
	if ch != nil && !ch.IsClosed() {
		_ = ch.Close()
	}

	if conn != nil && !conn.IsClosed() {
		_ = conn.Close()
	}
}
