package backoff

import (
	"context"
	"time"
)

// Sleep waits for duration, respecting context cancellation. Returns nil if
// the sleep completed, or ctx.Err() if the context was cancelled first.
func Sleep(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SleepFor computes the backoff duration for attempt under policy and sleeps
// for it, respecting context cancellation.
func SleepFor(ctx context.Context, policy Policy, attempt int) error {
	return Sleep(ctx, Compute(policy, attempt))
}
