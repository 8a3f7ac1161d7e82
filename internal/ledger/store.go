package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=ledger

// EntryStore is the authoritative ledger.
type EntryStore interface {
	Add(ctx context.Context, e Entry) error
	Get(ctx context.Context, id uuid.UUID) (Entry, error)
	EntriesForDate(ctx context.Context, date time.Time) ([]Entry, error)
	EntriesForPeriod(ctx context.Context, from, to time.Time) ([]Entry, error)
	List(ctx context.Context, offset, limit int) ([]Entry, error)
	Count(ctx context.Context) (int64, error)
}

// BalanceStore keeps one DailyBalance per date. Get returns
// ErrBalanceNotFound for days never consolidated.
type BalanceStore interface {
	Upsert(ctx context.Context, b DailyBalance) error
	Get(ctx context.Context, date time.Time) (DailyBalance, error)
	Range(ctx context.Context, from, to time.Time) ([]DailyBalance, error)
}
