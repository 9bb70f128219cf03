package provider

import (
	"context"
	"math/rand"
	"time"

	"fairlens/internal/logging"
)

// RetryPolicy wraps provider calls with capped exponential backoff.
// Delays run 2, 4, 8, ... seconds up to MaxBackoff, for MaxAttempts tries.
type RetryPolicy struct {
	MaxAttempts int
	MaxBackoff  time.Duration
	// Jitter adds up to one extra second of random delay per wait. Used by
	// the video adapters, where synchronized polling tends to herd.
	Jitter bool
	// ShouldRetry overrides the default transient classification.
	ShouldRetry func(error) bool

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy matches the common config defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, MaxBackoff: 60 * time.Second}
}

// Do runs op, retrying transient failures until success or budget exhaustion.
// Non-retryable errors surface immediately.
func (p RetryPolicy) Do(ctx context.Context, label string, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := p.backoff(attempt - 1)
			logging.Provider("[retry] %s: attempt %d/%d after %v: %v", label, attempt, attempts, delay, last)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
		last = op()
		if last == nil {
			return nil
		}
		if !shouldRetry(last) {
			return last
		}
	}
	return &ExhaustedError{Attempts: attempts, Last: last}
}

// backoff computes the wait before retry n: 2, 4, 8, ... seconds, capped.
func (p RetryPolicy) backoff(n int) time.Duration {
	delay := time.Duration(2<<uint(n-1)) * time.Second
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	if p.Jitter {
		delay += time.Duration(rand.Int63n(int64(time.Second)))
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
