// Package backoff provides exponential backoff with jitter for retrying LLM
// provider requests.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// InitialMs is the initial backoff duration in milliseconds.
	InitialMs float64
	// MaxMs is the maximum backoff duration in milliseconds.
	MaxMs float64
	// Factor is the exponential growth factor applied to each attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) applied to the backoff.
	Jitter float64
}

// Compute calculates the backoff duration for a given attempt number (1-indexed).
// base = InitialMs * Factor^(attempt-1); jitter = base * Jitter * random();
// returns min(MaxMs, base+jitter).
func Compute(policy Policy, attempt int) time.Duration {
	return computeWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not need cryptographic randomness
}

func computeWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	jitterAmount := base * policy.Jitter * randomValue
	total := math.Min(policy.MaxMs, base+jitterAmount)
	return time.Duration(math.Round(total)) * time.Millisecond
}

// DefaultPolicy returns the provider package's default retry policy:
// initial 1s, max 30s, factor 2, 10% jitter.
func DefaultPolicy() Policy {
	return Policy{InitialMs: 1000, MaxMs: 30000, Factor: 2, Jitter: 0.1}
}
