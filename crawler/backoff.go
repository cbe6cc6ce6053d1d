package crawler

import (
	"context"
	"time"
)

type Sleeper interface {
	Sleep(ctx context.Context, duration time.Duration) error
}

type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff waits attempt × Unit after the attempt-th consecutive failure. MaxAttempts of zero
// never gives up.
type Backoff struct {
	Unit        time.Duration
	MaxAttempts int
	Sleeper     Sleeper
}

func NewBackoff(unit time.Duration, maxAttempts int) *Backoff {
	return &Backoff{
		Unit:        unit,
		MaxAttempts: maxAttempts,
		Sleeper:     TimerSleeper{},
	}
}

func (b *Backoff) Delay(attempt int) time.Duration {
	return time.Duration(attempt) * b.Unit
}

// IsExhausted reports whether the attempt that just failed was the last one allowed.
func (b *Backoff) IsExhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt >= b.MaxAttempts
}

// Wait sleeps for the given attempt and returns the next attempt number.
func (b *Backoff) Wait(ctx context.Context, attempt int) (int, error) {
	if err := b.Sleeper.Sleep(ctx, b.Delay(attempt)); err != nil {
		return attempt, err
	}
	return attempt + 1, nil
}
