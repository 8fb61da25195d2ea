package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"newswatch/internal/retry"
	"newswatch/internal/services"
)

func immediatePolicy(maxAttempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		Sleeper:      func(time.Duration) {},
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), immediatePolicy(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), immediatePolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return services.Wrap(services.ErrTransient, "feed", "fetch", "", errors.New("timeout"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected three calls, got %d", calls)
	}
}

func TestDoPropagatesNonRetryableImmediately(t *testing.T) {
	calls := 0
	wrapped := services.Wrap(services.ErrMalformedFeed, "feed", "parse", "bad xml", nil)
	err := retry.Do(context.Background(), immediatePolicy(5), func(ctx context.Context) error {
		calls++
		return wrapped
	})
	if !errors.Is(err, services.ErrMalformedFeed) {
		t.Fatalf("expected malformed marker, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single call for non-retryable error, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	base := errors.New("connection refused")
	err := retry.Do(context.Background(), immediatePolicy(4), func(ctx context.Context) error {
		calls++
		return base
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped last error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected four calls, got %d", calls)
	}
}

func TestDoBackoffGrowsAndCaps(t *testing.T) {
	var delays []time.Duration
	policy := retry.Policy{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     400 * time.Millisecond,
		Multiplier:   2,
		Sleeper:      func(d time.Duration) { delays = append(delays, d) },
	}
	err := retry.Do(context.Background(), policy, func(ctx context.Context) error {
		return errors.New("still down")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	want := []time.Duration{100, 200, 400, 400}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %d (%v)", len(want), len(delays), delays)
	}
	for i, d := range want {
		if delays[i] != d*time.Millisecond {
			t.Fatalf("sleep %d was %v, expected %v", i, delays[i], d*time.Millisecond)
		}
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := retry.Policy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Sleeper:      func(time.Duration) { cancel() },
	}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		calls++
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call before cancellation, got %d", calls)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	breaker := retry.NewBreaker(3, time.Hour)
	failure := errors.New("unreachable")

	for i := 0; i < 3; i++ {
		if err := breaker.Allow("example.com"); err != nil {
			t.Fatalf("Allow returned error before threshold: %v", err)
		}
		breaker.Record("example.com", failure)
	}

	if err := breaker.Allow("example.com"); !errors.Is(err, retry.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	// Other keys are unaffected.
	if err := breaker.Allow("other.example.com"); err != nil {
		t.Fatalf("unrelated key rejected: %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	breaker := retry.NewBreaker(3, time.Hour)
	failure := errors.New("unreachable")

	breaker.Record("example.com", failure)
	breaker.Record("example.com", failure)
	breaker.Record("example.com", nil)
	breaker.Record("example.com", failure)
	breaker.Record("example.com", failure)

	if err := breaker.Allow("example.com"); err != nil {
		t.Fatalf("expected closed circuit after reset, got %v", err)
	}
}

func TestBreakerTrialAfterCooldown(t *testing.T) {
	breaker := retry.NewBreaker(1, 10*time.Millisecond)
	failure := errors.New("unreachable")

	if err := breaker.Allow("example.com"); err != nil {
		t.Fatalf("Allow returned error: %v", err)
	}
	breaker.Record("example.com", failure)
	if err := breaker.Allow("example.com"); !errors.Is(err, retry.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	// One trial call is admitted; a second concurrent caller is not.
	if err := breaker.Allow("example.com"); err != nil {
		t.Fatalf("expected trial admission, got %v", err)
	}
	if err := breaker.Allow("example.com"); !errors.Is(err, retry.ErrCircuitOpen) {
		t.Fatalf("expected rejection while trial in flight, got %v", err)
	}

	// A failed trial reopens the circuit.
	breaker.Record("example.com", failure)
	if err := breaker.Allow("example.com"); !errors.Is(err, retry.ErrCircuitOpen) {
		t.Fatalf("expected reopened circuit, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	// A successful trial closes it.
	if err := breaker.Allow("example.com"); err != nil {
		t.Fatalf("expected trial admission, got %v", err)
	}
	breaker.Record("example.com", nil)
	if err := breaker.Allow("example.com"); err != nil {
		t.Fatalf("expected closed circuit, got %v", err)
	}
}
