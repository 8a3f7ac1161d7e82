// Package cachetest provides an in-process cache backend for tests.
package cachetest

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// MemoryBackend keeps entries in process. Expired entries are dropped on
// access. It is not shared between processes.
type MemoryBackend struct {
	items sync.Map
	now   func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{now: time.Now}
}

func (m *MemoryBackend) load(key string) (memoryItem, bool) {
	v, ok := m.items.Load(key)
	if !ok {
		return memoryItem{}, false
	}

	item := v.(*memoryItem)
	if item.expired(m.now()) {
		m.items.CompareAndDelete(key, item)
		return memoryItem{}, false
	}

	return *item, true
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, ok := m.load(key)
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), item.value...), true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}

	m.items.Store(key, &item)

	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

func (m *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.load(key)
	return ok, nil
}

// SetIfAbsent stores value unless a live entry exists. An expired entry is
// replaced.
func (m *MemoryBackend) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	item := &memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}

	for {
		old, loaded := m.items.LoadOrStore(key, item)
		if !loaded {
			return true, nil
		}

		if !old.(*memoryItem).expired(m.now()) {
			return false, nil
		}

		if m.items.CompareAndSwap(key, old, item) {
			return true, nil
		}
	}
}
