package retry

import (
	"fmt"
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

type circuit struct {
	state    breakerState
	failures int
	openedAt time.Time
}

// Breaker is a per-key circuit breaker. A run of consecutive failures opens
// the key's circuit; further calls fail fast with ErrCircuitOpen until the
// cooldown elapses, after which a single trial call decides whether the
// circuit closes again.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	circuits map[string]*circuit
}

// NewBreaker builds a breaker opening after threshold consecutive failures.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		circuits:  make(map[string]*circuit),
	}
}

// Allow reports whether a call for key may proceed. When the cooldown of an
// open circuit has elapsed, exactly one caller is admitted as the trial.
func (b *Breaker) Allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(key)
	switch c.state {
	case stateClosed:
		return nil
	case stateHalfOpen:
		return fmt.Errorf("%s: trial in flight: %w", key, ErrCircuitOpen)
	default:
		if b.now().Sub(c.openedAt) < b.cooldown {
			return fmt.Errorf("%s: %w", key, ErrCircuitOpen)
		}
		c.state = stateHalfOpen
		return nil
	}
}

// Record feeds the outcome of a permitted call back into the breaker.
func (b *Breaker) Record(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(key)
	if err == nil {
		c.state = stateClosed
		c.failures = 0
		return
	}

	switch c.state {
	case stateHalfOpen:
		c.state = stateOpen
		c.openedAt = b.now()
	default:
		c.failures++
		if c.failures >= b.threshold {
			c.state = stateOpen
			c.openedAt = b.now()
		}
	}
}

func (b *Breaker) circuit(key string) *circuit {
	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}
	return c
}
