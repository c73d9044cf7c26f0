package backoff

import (
	"context"
	"testing"
	"time"
)

func TestSleep_ReturnsNilAfterDuration(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("Sleep returned before the requested duration elapsed")
	}
}

func TestSleep_ZeroDurationReturnsImmediately(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSleep_ContextCancelledReturnsCtxErr(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Second); err != ctx.Err() {
		t.Fatalf("got %v, want ctx.Err()", err)
	}
}

func TestSleepFor_UsesComputedBackoff(t *testing.T) {
	policy := Policy{InitialMs: 5, MaxMs: 1000, Factor: 2, Jitter: 0}
	start := time.Now()
	if err := SleepFor(context.Background(), policy, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatal("SleepFor returned before the computed backoff elapsed")
	}
}
