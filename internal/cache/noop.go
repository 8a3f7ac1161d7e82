package cache

import (
	"context"
	"time"
)

// NoopBackend caches nothing: every read misses and every write is dropped.
// Stores over it always fall through to the authoritative store.
type NoopBackend struct{}

func (NoopBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopBackend) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (NoopBackend) SetIfAbsent(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, nil
}

func (NoopBackend) Delete(context.Context, string) error {
	return nil
}

func (NoopBackend) Exists(context.Context, string) (bool, error) {
	return false, nil
}
