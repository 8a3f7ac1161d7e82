package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const pingTimeout = 5 * time.Second

// Backend is a raw keyed byte store. Implementations report a miss as
// found=false with a nil error.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetIfAbsent stores value only when key holds no live entry and
	// reports whether it did.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Open returns a Redis backend. Without an address it returns NoopBackend:
// the API and the worker run as separate processes, so a per-process cache
// would serve balances the worker already replaced. An unreachable Redis is
// logged, not returned: the Store fails open until it recovers.
func Open(ctx context.Context, cfg RedisConfig, log *logrus.Logger) (Backend, func()) {
	if cfg.Addr == "" {
		log.Warn("redis address not set, caching disabled")
		return NoopBackend{}, func() {}
	}

	r := NewRedisBackend(cfg)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := r.Ping(pingCtx); err != nil {
		log.WithError(err).WithField("addr", cfg.Addr).Warn("redis is unreachable, cache reads will miss until it recovers")
	} else {
		log.WithField("addr", cfg.Addr).Info("connected to Redis")
	}

	return r, func() {
		if err := r.Close(); err != nil {
			log.WithError(err).Error("failed to close redis client")
		}
	}
}
