// Package retry provides a bounded exponential backoff policy and a generic
// helper that runs an operation under it. Sleeping is injected so callers and
// tests control time.
package retry

import (
	"context"
	"math"
	"time"
)

// MaxDelay is where Backoff and WorstCase saturate.
const MaxDelay = time.Duration(math.MaxInt64)

// Policy describes how many times an operation runs and how long to wait
// between attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy is three attempts spaced 1s, 2s apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Backoff returns the wait after the given failed attempt (1-based):
// 2^(attempt-1) * BaseDelay, so 1s, 2s, 4s, ... for a 1s base.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.BaseDelay <= 0 {
		return 0
	}
	shift := min(attempt-1, 62)
	if p.BaseDelay > MaxDelay>>shift {
		return MaxDelay
	}
	return p.BaseDelay << shift
}

// WorstCase is the total time spent waiting if every attempt fails.
func (p Policy) WorstCase() time.Duration {
	var total time.Duration
	for a := 1; a < p.attempts(); a++ {
		b := p.Backoff(a)
		if b > MaxDelay-total {
			return MaxDelay
		}
		total += b
	}
	return total
}

// Attempts is MaxAttempts, at least 1.
func (p Policy) Attempts() int { return p.attempts() }

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AttemptHook is called after each failed attempt with the attempt number
// and its error.
type AttemptHook func(attempt int, err error)

// Do runs op until it succeeds or the policy is exhausted. It returns the
// number of attempts made and the last error (nil on success). A cancelled
// context stops further attempts but never interrupts one in flight.
func Do(ctx context.Context, p Policy, sleep SleepFunc, onFail AttemptHook, op func(ctx context.Context, attempt int) error) (int, error) {
	if sleep == nil {
		sleep = Sleep
	}
	maxAttempts := p.attempts()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if onFail != nil {
			onFail(attempt, lastErr)
		}
		if attempt == maxAttempts {
			return attempt, lastErr
		}
		if err := sleep(ctx, p.Backoff(attempt)); err != nil {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}
