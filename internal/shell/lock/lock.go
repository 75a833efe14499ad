// Package lock provides the single-flight guard that keeps at most one
// deployment job running.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/shell/store"
)

// DefaultLeaseName is the lease row shared by every orchestrator process.
const DefaultLeaseName = "deploy"

// Lock is a non-blocking, single-holder guard. TryAcquire fails with
// domain.ErrLockContention when the guard is held.
type Lock interface {
	TryAcquire(ctx context.Context, jobID int64) (Release, error)
}

// Release gives the guard back. It is safe to call more than once.
type Release func()

// =============================================================================
// In-Process Lock
// =============================================================================

// MemoryLock guards a single process.
type MemoryLock struct {
	sem *semaphore.Weighted
}

// NewMemoryLock creates an unheld MemoryLock.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{sem: semaphore.NewWeighted(1)}
}

func (l *MemoryLock) TryAcquire(_ context.Context, _ int64) (Release, error) {
	if !l.sem.TryAcquire(1) {
		return nil, domain.ErrLockContention
	}
	var once sync.Once
	return func() { once.Do(func() { l.sem.Release(1) }) }, nil
}

// =============================================================================
// Lease Lock
// =============================================================================

// LeaseStore persists leases.
type LeaseStore interface {
	AcquireLease(ctx context.Context, lease store.Lease) error
	ReleaseLease(ctx context.Context, name, owner string) error
}

// LeaseLock guards every process sharing a database. A lease expires after
// its TTL so a crashed holder cannot keep the slot forever.
type LeaseLock struct {
	store  LeaseStore
	name   string
	ttl    time.Duration
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewLeaseLock creates a LeaseLock. ttl must outlast the longest job.
func NewLeaseLock(s LeaseStore, name string, ttl time.Duration, clock clockwork.Clock, logger *slog.Logger) *LeaseLock {
	if name == "" {
		name = DefaultLeaseName
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaseLock{
		store:  s,
		name:   name,
		ttl:    ttl,
		clock:  clock,
		logger: logger.With("component", "lease-lock"),
	}
}

func (l *LeaseLock) TryAcquire(ctx context.Context, jobID int64) (Release, error) {
	now := l.clock.Now()
	owner := uuid.New().String()

	err := l.store.AcquireLease(ctx, store.Lease{
		Name:       l.name,
		Owner:      owner,
		JobID:      jobID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(l.ttl),
	})
	if err != nil {
		if errors.Is(err, store.ErrLeaseHeld) {
			return nil, fmt.Errorf("%w: %v", domain.ErrLockContention, err)
		}
		return nil, err
	}
	l.logger.Debug("lease acquired", "lease", l.name, "owner", owner, "job_id", jobID)

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done by the time the lock is released.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := l.store.ReleaseLease(releaseCtx, l.name, owner); err != nil {
				l.logger.Warn("failed to release lease", "lease", l.name, "owner", owner, "error", err)
				return
			}
			l.logger.Debug("lease released", "lease", l.name, "owner", owner)
		})
	}, nil
}
