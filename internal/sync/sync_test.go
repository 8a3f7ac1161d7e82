package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	from, to time.Time
}

type fakeRefresher struct {
	mu    gosync.Mutex
	calls []call
	err   error
}

func (f *fakeRefresher) Refresh(_ context.Context, from, to time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call{from: from, to: to})

	return len(f.calls), f.err
}

func (f *fakeRefresher) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]call(nil), f.calls...)
}

func TestRunSync_WarmsTrailingDays(t *testing.T) {
	log, hook := test.NewNullLogger()
	r := &fakeRefresher{}

	runSync(context.Background(), r, 7, time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC), log)

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), calls[0].from)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), calls[0].to)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}

func TestRunSync_LogsFailures(t *testing.T) {
	log, hook := test.NewNullLogger()
	r := &fakeRefresher{err: errors.New("relation \"daily_balances\" does not exist")}

	runSync(context.Background(), r, 1, time.Now(), log)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestRunSync_DisabledWithoutDays(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := &fakeRefresher{}

	runSync(context.Background(), r, 0, time.Now(), log)

	assert.Empty(t, r.Calls())
}

func TestSyncCache_RunsUntilCancelled(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := &fakeRefresher{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		SyncCache(ctx, r, 3, 5*time.Millisecond, log)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(r.Calls()) >= 3 }, time.Second, time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cache synchronizer did not stop")
	}
}
