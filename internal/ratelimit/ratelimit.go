// Package ratelimit provides a per-key token bucket used to pace outbound
// requests to feed hosts and scoring providers.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out tokens per key. Each key gets its own bucket with the
// shared capacity and refill interval; unknown keys are created on first use.
type Limiter struct {
	capacity int
	interval time.Duration

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New builds a limiter granting capacity tokens per interval for each key.
func New(capacity int, interval time.Duration) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Limiter{
		capacity: capacity,
		interval: interval,
		buckets:  make(map[string]*rate.Limiter),
	}
}

// PerMinute builds a limiter granting n tokens per minute for each key.
func PerMinute(n int) *Limiter {
	return New(n, time.Minute)
}

// Acquire blocks until a token is available for key or ctx is done. The only
// error it returns is the context's.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	return l.bucket(key).Wait(ctx)
}

// Allow reports whether a token is immediately available for key, consuming
// it when so.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[key]
	if !ok {
		limit := rate.Limit(float64(l.capacity) / l.interval.Seconds())
		bucket = rate.NewLimiter(limit, l.capacity)
		l.buckets[key] = bucket
	}
	return bucket
}
