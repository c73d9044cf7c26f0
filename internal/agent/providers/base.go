package providers

import (
	"context"
	"time"

	"github.com/openvia/openvia/internal/backoff"
)

// BaseProvider holds shared retry configuration for LLM providers.
type BaseProvider struct {
	name       string
	maxRetries int
	policy     backoff.Policy
}

// NewBaseProvider creates a base provider with sane defaults. retryDelay, if
// positive, overrides the default policy's initial backoff; the policy
// still grows exponentially (backoff.DefaultPolicy's factor) from there.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	policy := backoff.DefaultPolicy()
	if retryDelay > 0 {
		policy.InitialMs = float64(retryDelay / time.Millisecond)
	}
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		policy:     policy,
	}
}

// Retry executes op with exponential backoff (internal/backoff) if
// isRetryable returns true for the error it produced.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
			if isRetryable == nil || !isRetryable(err) {
				return err
			}
			if attempt >= b.maxRetries {
				break
			}
			if err := backoff.SleepFor(ctx, b.policy, attempt); err != nil {
				return err
			}
		}
	}
	return lastErr
}
