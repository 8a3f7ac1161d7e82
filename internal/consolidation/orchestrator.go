package consolidation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"cashflow-service/internal/ledger"
)

//go:generate mockgen -source=orchestrator.go -destination=orchestrator_mock.go -package=consolidation

// BalanceWriter is a BalanceStore whose cached copy of a day can be dropped.
type BalanceWriter interface {
	ledger.BalanceStore
	Invalidate(ctx context.Context, date time.Time)
}

// Orchestrator re-derives daily balances from the ledger. Every
// recomputation reads the whole day, so running it twice or concurrently
// for the same day converges on the same record.
type Orchestrator struct {
	entries  ledger.EntryStore
	balances BalanceWriter
	now      func() time.Time
	log      *logrus.Logger
}

func NewOrchestrator(entries ledger.EntryStore, balances BalanceWriter, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		entries:  entries,
		balances: balances,
		now:      time.Now,
		log:      log,
	}
}

// Recalculate invalidates the cached balance of date, aggregates the day's
// entries and upserts the result, which refreshes the cache. A day without
// entries yields an explicit zero record. Repeated calls stamp a new
// ProcessedAt, so compare results with DailyBalance.Equal, not == or
// reflect.DeepEqual.
func (o *Orchestrator) Recalculate(ctx context.Context, date time.Time) (ledger.DailyBalance, error) {
	day := ledger.Day(date)

	o.balances.Invalidate(ctx, day)

	entries, err := o.entries.EntriesForDate(ctx, day)
	if err != nil {
		return ledger.DailyBalance{}, fmt.Errorf("loading entries for %s: %w", day.Format(time.DateOnly), err)
	}

	balance := ledger.Aggregate(day, entries)
	balance.ProcessedAt = o.now().UTC()

	if err := o.balances.Upsert(ctx, balance); err != nil {
		return ledger.DailyBalance{}, fmt.Errorf("saving balance for %s: %w", day.Format(time.DateOnly), err)
	}

	o.log.WithFields(logrus.Fields{
		"date":          day.Format(time.DateOnly),
		"total_credits": balance.TotalCredits.String(),
		"total_debits":  balance.TotalDebits.String(),
		"balance":       balance.Balance().String(),
		"entry_count":   balance.EntryCount,
	}).Info("daily balance consolidated")

	return balance, nil
}

// HandleEntryCreated recomputes the event's day. The payload only selects
// the day; the amounts are re-read from the ledger.
func (o *Orchestrator) HandleEntryCreated(ctx context.Context, event ledger.EntryCreatedEvent) error {
	_, err := o.Recalculate(ctx, event.Date)
	return err
}
