package consumer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashflow-service/internal/consumer"
	"cashflow-service/internal/messaging"
	"cashflow-service/internal/messaging/messagingtest"
	"cashflow-service/internal/processor"
)

const waitFor = 2 * time.Second

// ackingProcessor acks everything and records bodies in order.
type ackingProcessor struct {
	mu     sync.Mutex
	bodies []string
	active int
	maxIn  int
}

func (p *ackingProcessor) Process(_ context.Context, d amqp.Delivery) processor.Outcome {
	p.mu.Lock()
	p.active++
	p.maxIn = max(p.maxIn, p.active)
	p.bodies = append(p.bodies, string(d.Body))
	p.mu.Unlock()

	time.Sleep(time.Millisecond)
	_ = d.Ack(false)

	p.mu.Lock()
	p.active--
	p.mu.Unlock()

	return processor.Acked
}

func (p *ackingProcessor) Bodies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.bodies...)
}

func (p *ackingProcessor) MaxInFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.maxIn
}

func newConsumer(b *messagingtest.Broker, p consumer.Processor) *consumer.Consumer {
	log, _ := test.NewNullLogger()

	return consumer.New(consumer.Config{
		Topology: messaging.Topology{
			Exchange:      "cashflow.events",
			Queue:         "cashflow.consolidation",
			BindingKey:    "entry.#",
			QueueType:     "quorum",
			MaxDeliveries: 5,
		},
		Tag:               "test",
		ReconnectDelay:    5 * time.Millisecond,
		ReconnectMaxDelay: 20 * time.Millisecond,
	}, b.Dial, p, log)
}

func start(t *testing.T, c *consumer.Consumer) (cancel func() error) {
	t.Helper()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- c.Run(ctx) }()

	return func() error {
		stop()

		select {
		case err := <-done:
			return err
		case <-time.After(waitFor):
			t.Fatal("consumer did not stop")
			return nil
		}
	}
}

func TestConsumer_ConsumesSequentially(t *testing.T) {
	b := messagingtest.NewBroker()
	p := &ackingProcessor{}
	c := newConsumer(b, p)

	assert.Equal(t, consumer.StateDisconnected, c.State())
	assert.Error(t, c.Healthy())

	stop := start(t, c)

	require.Eventually(t, func() bool { return c.State() == consumer.StateConsuming }, waitFor, time.Millisecond)
	assert.NoError(t, c.Healthy())
	assert.Equal(t, 1, b.Prefetch())

	args, ok := b.Queue("cashflow.consolidation")
	require.True(t, ok)
	assert.Equal(t, "cashflow.events.dlx", args["x-dead-letter-exchange"])

	for _, body := range []string{"a", "b", "c"} {
		_, ok := b.Deliver([]byte(body), nil)
		require.True(t, ok)
	}

	require.Eventually(t, func() bool { return len(b.Acks()) == 3 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, p.Bodies())
	assert.Equal(t, 1, p.MaxInFlight(), "one message in flight at a time")

	require.NoError(t, stop())
	assert.Equal(t, int64(3), c.Processed())
	assert.Equal(t, consumer.StateDisconnected, c.State())

	for _, conn := range b.Connections() {
		assert.True(t, conn.IsClosed())
	}
}

func TestConsumer_ReconnectsAfterConnectionLoss(t *testing.T) {
	b := messagingtest.NewBroker()
	p := &ackingProcessor{}
	c := newConsumer(b, p)

	stop := start(t, c)
	t.Cleanup(func() { _ = stop() })

	require.Eventually(t, b.Consuming, waitFor, time.Millisecond)

	b.Drop()

	require.Eventually(t, func() bool {
		return b.Dials() == 2 && b.Consuming()
	}, waitFor, time.Millisecond)

	_, ok := b.Deliver([]byte("after"), nil)
	require.True(t, ok)

	require.Eventually(t, func() bool { return len(b.Acks()) == 1 }, waitFor, time.Millisecond)

	conns := b.Connections()
	require.Len(t, conns, 2)
	assert.True(t, conns[0].IsClosed())
	assert.False(t, conns[1].IsClosed())
}

func TestConsumer_RetriesUntilBrokerIsReachable(t *testing.T) {
	b := messagingtest.NewBroker()
	b.FailDials(3, errors.New("dial tcp: connection refused"))

	c := newConsumer(b, &ackingProcessor{})

	stop := start(t, c)
	t.Cleanup(func() { _ = stop() })

	require.Eventually(t, b.Consuming, waitFor, time.Millisecond)
	assert.Equal(t, 4, b.Dials())
}

func TestConsumer_StopsWhileDisconnected(t *testing.T) {
	b := messagingtest.NewBroker()
	b.FailDials(1000, errors.New("dial tcp: connection refused"))

	c := newConsumer(b, &ackingProcessor{})
	stop := start(t, c)

	require.Eventually(t, func() bool { return b.Dials() > 1 }, waitFor, time.Millisecond)
	require.NoError(t, stop())
	assert.Equal(t, consumer.StateDisconnected, c.State())
}
