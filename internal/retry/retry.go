// Package retry provides exponential-backoff retries and a per-key circuit
// breaker for calls to external systems.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newswatch/internal/services"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
	defaultMultiplier   = 2.0
)

// Policy controls how Do retries an operation.
type Policy struct {
	// MaxAttempts bounds total executions, first try included.
	MaxAttempts int
	// InitialDelay is the wait after the first failure.
	InitialDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// Multiplier scales the delay after each failure.
	Multiplier float64
	// RetryIf decides whether an error is retryable. Nil means
	// services.IsRetryable.
	RetryIf func(error) bool
	// Sleeper overrides how waits are performed (useful for tests). Nil
	// sleeps on a timer honoring ctx.
	Sleeper func(time.Duration)
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = defaultMultiplier
	}
	if p.RetryIf == nil {
		p.RetryIf = services.IsRetryable
	}
	return p
}

// Do runs op until it succeeds, fails with a non-retryable error, or exhausts
// the policy's attempts. Non-retryable errors propagate unwrapped on first
// occurrence; exhaustion wraps the last error with the attempt count.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	policy = policy.normalized()

	var lastErr error
	delay := policy.InitialDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !policy.RetryIf(err) {
			return err
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}
		if err := policy.sleep(ctx, delay); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", policy.MaxAttempts, lastErr)
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if p.Sleeper != nil {
		p.Sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrCircuitOpen reports a call rejected without execution because the key's
// circuit is open.
var ErrCircuitOpen = errors.New("circuit open")
