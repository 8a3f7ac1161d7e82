package sync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"cashflow-service/internal/ledger"
)

const (
	syncTimeout = 30 * time.Second
)

// Refresher copies stored balances of a period into the cache.
type Refresher interface {
	Refresh(ctx context.Context, from, to time.Time) (int, error)
}

// SyncCache periodically warms the cache with the balances of the last days
func SyncCache(
	ctx context.Context,
	balances Refresher,
	days int,
	interval time.Duration,
	log *logrus.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run initial sync
	runSync(ctx, balances, days, time.Now(), log)

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping cache synchronizer")
			return
		case now := <-ticker.C:
			runSync(ctx, balances, days, now, log)
		}
	}
}

func runSync(
	ctx context.Context,
	balances Refresher,
	days int,
	now time.Time,
	log *logrus.Logger,
) {
	if days < 1 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	to := ledger.Day(now)
	from := to.AddDate(0, 0, -(days - 1))

	synced, err := balances.Refresh(ctx, from, to)
	if err != nil {
		log.WithError(err).Error("failed to refresh balances for cache sync")
		return
	}

	log.WithFields(logrus.Fields{
		"synced": synced,
		"from":   from.Format(time.DateOnly),
		"to":     to.Format(time.DateOnly),
	}).Info("cache synchronization completed")
}
