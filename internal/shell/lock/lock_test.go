package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/shell/store"
)

func TestMemoryLock_SingleHolder(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	release, err := l.TryAcquire(ctx, 1)
	require.NoError(t, err)

	_, err = l.TryAcquire(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrLockContention)

	release()
	release() // idempotent

	release2, err := l.TryAcquire(ctx, 3)
	require.NoError(t, err)
	release2()
}

func TestMemoryLock_ConcurrentAcquire(t *testing.T) {
	l := NewMemoryLock()

	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := l.TryAcquire(context.Background(), id); err != nil {
				losses.Add(1)
				return
			}
			wins.Add(1)
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(15), losses.Load())
}

func setupLeaseStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLeaseLock_SingleHolderAcrossInstances(t *testing.T) {
	s := setupLeaseStore(t)
	clock := clockwork.NewFakeClock()
	ctx := context.Background()

	a := NewLeaseLock(s, "", time.Hour, clock, nil)
	b := NewLeaseLock(s, "", time.Hour, clock, nil)

	release, err := a.TryAcquire(ctx, 1)
	require.NoError(t, err)

	_, err = b.TryAcquire(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrLockContention)

	release()

	releaseB, err := b.TryAcquire(ctx, 2)
	require.NoError(t, err)

	lease, err := s.GetLease(ctx, DefaultLeaseName)
	require.NoError(t, err)
	assert.Equal(t, int64(2), lease.JobID)
	releaseB()
}

func TestLeaseLock_ExpiredLeaseIsTakenOver(t *testing.T) {
	s := setupLeaseStore(t)
	clock := clockwork.NewFakeClock()
	ctx := context.Background()

	crashed := NewLeaseLock(s, "", time.Minute, clock, nil)
	_, err := crashed.TryAcquire(ctx, 1)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	next := NewLeaseLock(s, "", time.Minute, clock, nil)
	release, err := next.TryAcquire(ctx, 2)
	require.NoError(t, err)
	release()
}

type failingLeaseStore struct{}

func (failingLeaseStore) AcquireLease(context.Context, store.Lease) error {
	return errors.New("database is locked")
}

func (failingLeaseStore) ReleaseLease(context.Context, string, string) error { return nil }

func TestLeaseLock_StoreErrorIsNotContention(t *testing.T) {
	l := NewLeaseLock(failingLeaseStore{}, "", time.Hour, clockwork.NewFakeClock(), nil)

	_, err := l.TryAcquire(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrLockContention)
}
