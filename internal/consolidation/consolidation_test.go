package consolidation_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cashflow-service/internal/cache"
	"cashflow-service/internal/cache/cachetest"
	"cashflow-service/internal/consolidation"
	"cashflow-service/internal/database/databasetest"
	"cashflow-service/internal/ledger"
	"cashflow-service/internal/processor"
	"cashflow-service/internal/repository"
	"cashflow-service/internal/resilience"
)

type acks struct {
	mu      sync.Mutex
	acked   int
	nacked  int
	requeue int
}

func (a *acks) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.acked++

	return nil
}

func (a *acks) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nacked++
	if requeue {
		a.requeue++
	}

	return nil
}

func (a *acks) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type pipeline struct {
	db        *gorm.DB
	entries   *repository.EntryRepository
	stored    *repository.BalanceRepository
	balances  *repository.CachedBalanceRepository
	backend   *cachetest.MemoryBackend
	processor *processor.Processor
}

func cachePolicy(log *logrus.Logger) *resilience.Policy {
	return resilience.New(resilience.Config{
		Name:              "cache",
		MaxAttempts:       1,
		Timeout:           time.Second,
		FailureRatio:      0.5,
		MinimumThroughput: 5,
		SamplingDuration:  time.Minute,
		BreakDuration:     time.Minute,
	}, log)
}

func newPipeline(t *testing.T) pipeline {
	t.Helper()

	log, _ := test.NewNullLogger()
	db := databasetest.New(t)

	backend := cachetest.NewMemoryBackend()
	policy := cachePolicy(log)

	p := pipeline{
		db:      db,
		entries: repository.NewEntryRepository(db, log),
		stored:  repository.NewBalanceRepository(db, log),
		backend: backend,
	}
	p.balances = repository.NewCachedBalanceRepository(p.stored, cache.NewStore(backend, policy, time.Minute, log), 15*time.Minute, log)

	o := consolidation.NewOrchestrator(p.entries, p.balances, log)
	p.processor = processor.New(o, time.Second, 5, log)

	return p
}

func (p pipeline) add(t *testing.T, amount string, kind ledger.Kind, date time.Time) []byte {
	t.Helper()

	e, err := ledger.NewEntry(decimal.RequireFromString(amount), kind, date, "entry "+amount, date)
	require.NoError(t, err)
	require.NoError(t, p.entries.Add(context.Background(), e))

	body, err := json.Marshal(ledger.NewEntryCreatedEvent(e))
	require.NoError(t, err)

	return body
}

func TestConsolidation_RedeliveryConverges(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	bodies := [][]byte{
		p.add(t, "100.00", ledger.KindCredit, day),
		p.add(t, "200.00", ledger.KindCredit, day),
		p.add(t, "50.00", ledger.KindDebit, day),
	}

	ack := &acks{}

	// Every event once, then all of them again as if the broker redelivered
	// after a crash.
	for range 2 {
		for _, body := range bodies {
			got := p.processor.Process(ctx, amqp.Delivery{Acknowledger: ack, Body: body})
			require.Equal(t, processor.Acked, got)
		}
	}

	assert.Equal(t, 6, ack.acked)
	assert.Zero(t, ack.nacked)

	stored, err := p.stored.Get(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "300", stored.TotalCredits.String())
	assert.Equal(t, "50", stored.TotalDebits.String())
	assert.Equal(t, "250", stored.Balance().String())
	assert.Equal(t, 3, stored.EntryCount)

	cached, err := p.balances.Get(ctx, day)
	require.NoError(t, err)
	assert.True(t, cached.Equal(stored), "cache holds the last written balance")

	ok, err := p.backend.Exists(ctx, cache.BalanceKey(day))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsolidation_ConcurrentRecalculationsConverge(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	body := p.add(t, "75.25", ledger.KindCredit, day)
	p.add(t, "25.25", ledger.KindDebit, day)

	ack := &acks{}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			p.processor.Process(ctx, amqp.Delivery{Acknowledger: ack, Body: body})
		}()
	}

	wg.Wait()

	got, err := p.balances.Get(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "50", got.Balance().String())
	assert.Equal(t, 2, got.EntryCount)
}

func TestConsolidation_PoisonMessageIsDeadLettered(t *testing.T) {
	p := newPipeline(t)
	ack := &acks{}

	got := p.processor.Process(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte(`{"entryId":`)})

	assert.Equal(t, processor.DeadLettered, got)
	assert.Equal(t, 1, ack.nacked)
	assert.Zero(t, ack.requeue)
}

func TestConsolidation_SeparateProcessWithoutRedisReadsFreshBalances(t *testing.T) {
	worker := newPipeline(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC)
	log, _ := test.NewNullLogger()

	// The API process shares the database but not the worker's memory.
	backend, closeFn := cache.Open(ctx, cache.RedisConfig{}, log)
	defer closeFn()

	api := repository.NewCachedBalanceRepository(
		repository.NewBalanceRepository(worker.db, log),
		cache.NewStore(backend, cachePolicy(log), time.Minute, log),
		15*time.Minute,
		log,
	)

	ack := &acks{}

	first := worker.add(t, "100.00", ledger.KindCredit, day)
	require.Equal(t, processor.Acked, worker.processor.Process(ctx, amqp.Delivery{Acknowledger: ack, Body: first}))

	got, err := api.Get(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "100", got.Balance().String())

	second := worker.add(t, "40.00", ledger.KindDebit, day)
	require.Equal(t, processor.Acked, worker.processor.Process(ctx, amqp.Delivery{Acknowledger: ack, Body: second}))

	got, err = api.Get(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "60", got.Balance().String(), "the API never serves the balance the worker replaced")
}
