package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"cashflow-service/internal/cache"
	"cashflow-service/internal/ledger"
)

// CachedBalanceRepository decorates a BalanceStore with the cache-aside
// store. Writes always reach the inner store first; the cache only ever
// holds copies.
type CachedBalanceRepository struct {
	inner ledger.BalanceStore
	cache *cache.Store
	ttl   time.Duration
	log   *logrus.Logger
}

var _ ledger.BalanceStore = (*CachedBalanceRepository)(nil)

func NewCachedBalanceRepository(inner ledger.BalanceStore, store *cache.Store, ttl time.Duration, log *logrus.Logger) *CachedBalanceRepository {
	return &CachedBalanceRepository{
		inner: inner,
		cache: store,
		ttl:   ttl,
		log:   log,
	}
}

// Upsert writes through: the cache is refreshed only after the inner write
// succeeded.
func (r *CachedBalanceRepository) Upsert(ctx context.Context, b ledger.DailyBalance) error {
	if err := r.inner.Upsert(ctx, b); err != nil {
		return err
	}

	r.cache.Set(ctx, cache.BalanceKey(b.Date), b, r.ttl)

	return nil
}

func (r *CachedBalanceRepository) Get(ctx context.Context, date time.Time) (ledger.DailyBalance, error) {
	b, found, err := cache.GetOrLoad(ctx, r.cache, cache.BalanceKey(date), r.ttl,
		func(ctx context.Context) (ledger.DailyBalance, bool, error) {
			b, err := r.inner.Get(ctx, date)
			if errors.Is(err, ledger.ErrBalanceNotFound) {
				return ledger.DailyBalance{}, false, nil
			}

			return b, err == nil, err
		})
	if err != nil {
		return ledger.DailyBalance{}, err
	}

	if !found {
		return ledger.DailyBalance{}, ledger.ErrBalanceNotFound
	}

	return b, nil
}

// Range is not cached.
func (r *CachedBalanceRepository) Range(ctx context.Context, from, to time.Time) ([]ledger.DailyBalance, error) {
	return r.inner.Range(ctx, from, to)
}

// Invalidate drops the cached balance of date.
func (r *CachedBalanceRepository) Invalidate(ctx context.Context, date time.Time) {
	r.cache.Delete(ctx, cache.BalanceKey(date))
}

// Refresh caches the stored balances of [from, to] that are not cached yet
// and returns how many it added. Cached days are left alone: a concurrent
// Upsert may have written a newer balance after the range was read.
func (r *CachedBalanceRepository) Refresh(ctx context.Context, from, to time.Time) (int, error) {
	balances, err := r.inner.Range(ctx, from, to)
	if err != nil {
		return 0, err
	}

	added := 0

	for _, b := range balances {
		if r.cache.Add(ctx, cache.BalanceKey(b.Date), b, r.ttl) {
			added++
		}
	}

	return added, nil
}
