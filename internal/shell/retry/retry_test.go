package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), clockwork.NewFakeClock(), Constant(3, time.Second), func(context.Context) error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesWithGrowingWaits(t *testing.T) {
	clock := clockwork.NewFakeClock()
	boom := errors.New("busy")

	calls := 0
	var waits []time.Duration
	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), clock, Policy{Attempts: 3, Initial: time.Second, Max: 10 * time.Second}, func(context.Context) error {
			calls++
			if calls < 3 {
				return boom
			}
			return nil
		}, func(_ int, _ error, wait time.Duration) {
			waits = append(waits, wait)
		})
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	clock.BlockUntil(1)
	clock.Advance(2 * time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestDo_ExhaustedReturnsLastError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	boom := errors.New("still busy")

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), clock, Constant(2, time.Second), func(context.Context) error {
			calls++
			return boom
		}, nil)
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Second)

	assert.ErrorIs(t, <-done, boom)
	assert.Equal(t, 2, calls)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	boom := errors.New("no such image")

	calls := 0
	err := Do(context.Background(), clockwork.NewFakeClock(), Constant(5, time.Second), func(context.Context) error {
		calls++
		return Permanent(boom)
	}, nil)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, clockwork.NewFakeClock(), Constant(5, time.Second), func(context.Context) error {
		calls++
		return nil
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestSleep_WaitsForClock(t *testing.T) {
	clock := clockwork.NewFakeClock()

	done := make(chan error, 1)
	go func() {
		done <- Sleep(context.Background(), clock, 5*time.Second)
	}()

	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)
	assert.NoError(t, <-done)
}

func TestSleep_ZeroReturnsImmediately(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), clockwork.NewFakeClock(), 0))
}

func TestSleep_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, clockwork.NewFakeClock(), time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
