// Package retry provides bounded retry-with-backoff and settle waits driven by
// an injectable clock, so callers can be tested without sleeping.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	Attempts int
	// Initial is the wait after the first failure.
	Initial time.Duration
	// Max caps the wait between attempts.
	Max time.Duration
	// Multiplier grows the wait after each failure. Zero means 2.
	Multiplier float64
}

// Constant returns a policy that waits the same interval between attempts.
func Constant(attempts int, interval time.Duration) Policy {
	return Policy{Attempts: attempts, Initial: interval, Max: interval, Multiplier: 1}
}

// Notify is called after a failed attempt, before waiting.
type Notify func(attempt int, err error, wait time.Duration)

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a permanent error, the policy is
// exhausted or ctx is done. The last error is returned.
func Do(ctx context.Context, clock clockwork.Clock, policy Policy, op func(ctx context.Context) error, notify Notify) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = policy.Initial
	eb.MaxInterval = policy.Max
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	eb.Multiplier = policy.Multiplier
	if eb.Multiplier <= 0 {
		eb.Multiplier = 2
	}
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Clock = clock

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op(ctx)
	}

	var onFailure backoff.Notify
	if notify != nil {
		onFailure = func(err error, wait time.Duration) {
			notify(attempt, err, wait)
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, b, onFailure, &clockTimer{clock: clock})
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

// Sleep waits d on clock, returning early with ctx.Err() if ctx is done.
func Sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

// clockTimer adapts a clockwork timer to backoff.Timer.
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}
