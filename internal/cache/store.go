package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"cashflow-service/internal/resilience"
)

const balanceKeyPrefix = "balance:"

// BalanceKey is the cache key of the consolidated balance of a day.
func BalanceKey(date time.Time) string {
	return balanceKeyPrefix + date.Format(time.DateOnly)
}

// Store is a cache-aside front for a Backend. Every backend call runs under
// the cache policy and every failure is absorbed: reads degrade to a miss
// and writes are skipped. Callers never see a cache error.
type Store struct {
	backend    Backend
	policy     *resilience.Policy
	defaultTTL time.Duration
	log        *logrus.Logger
}

func NewStore(backend Backend, policy *resilience.Policy, defaultTTL time.Duration, log *logrus.Logger) *Store {
	return &Store{
		backend:    backend,
		policy:     policy,
		defaultTTL: defaultTTL,
		log:        log,
	}
}

// Get decodes the cached JSON value of key into dst and reports whether it
// was a hit. Undecodable values are treated as a miss and evicted.
func (s *Store) Get(ctx context.Context, key string, dst any) bool {
	type hit struct {
		data  []byte
		found bool
	}

	res, err := resilience.Execute(ctx, s.policy, func(ctx context.Context) (hit, error) {
		data, found, err := s.backend.Get(ctx, key)
		return hit{data: data, found: found}, err
	})
	if err != nil {
		s.warn(err, key, "cache get failed, treating as miss")
		return false
	}

	if !res.found {
		s.log.WithField("key", key).Debug("cache miss")
		return false
	}

	if err := json.Unmarshal(res.data, dst); err != nil {
		s.warn(err, key, "cached value is corrupt, evicting")
		s.Delete(ctx, key)

		return false
	}

	s.log.WithField("key", key).Debug("cache hit")

	return true
}

// Set stores value as JSON. A zero ttl uses the store default.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.warn(err, key, "cannot encode cache value, skipping")
		return
	}

	err = s.policy.Do(ctx, func(ctx context.Context) error {
		return s.backend.Set(ctx, key, data, ttl)
	})
	if err != nil {
		s.warn(err, key, "cache set failed, skipping")
		return
	}

	s.log.WithFields(logrus.Fields{"key": key, "ttl": ttl}).Debug("cache set")
}

// Add stores value only when key is not cached yet and reports whether it
// did. A value written concurrently by Set is never overwritten.
func (s *Store) Add(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.warn(err, key, "cannot encode cache value, skipping")
		return false
	}

	added, err := resilience.Execute(ctx, s.policy, func(ctx context.Context) (bool, error) {
		return s.backend.SetIfAbsent(ctx, key, data, ttl)
	})
	if err != nil {
		s.warn(err, key, "cache add failed, skipping")
		return false
	}

	return added
}

func (s *Store) Delete(ctx context.Context, key string) {
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.backend.Delete(ctx, key)
	})
	if err != nil {
		s.warn(err, key, "cache delete failed, skipping")
	}
}

func (s *Store) Exists(ctx context.Context, key string) bool {
	found, err := resilience.Execute(ctx, s.policy, func(ctx context.Context) (bool, error) {
		return s.backend.Exists(ctx, key)
	})
	if err != nil {
		s.warn(err, key, "cache exists failed, treating as miss")
		return false
	}

	return found
}

func (s *Store) warn(err error, key, msg string) {
	s.log.WithError(err).WithFields(logrus.Fields{
		"key":    key,
		"policy": s.policy.Name(),
	}).Error(msg)
}

// Loader reads the authoritative value. found=false means there is nothing
// to cache.
type Loader[T any] func(ctx context.Context) (value T, found bool, err error)

// GetOrLoad returns the cached value of key, or the loader's value on a miss.
// A found loader value is cached with ttl; failing to cache it does not fail
// the read. Loader errors are returned unchanged.
func GetOrLoad[T any](ctx context.Context, s *Store, key string, ttl time.Duration, load Loader[T]) (T, bool, error) {
	var cached T
	if s.Get(ctx, key, &cached) {
		return cached, true, nil
	}

	v, found, err := load(ctx)
	if err != nil || !found {
		return v, found, err
	}

	s.Set(ctx, key, v, ttl)

	return v, true, nil
}
