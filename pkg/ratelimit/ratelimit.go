package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter paces operations to a fixed rate with optional jitter. Callers
// reserve the next free slot under a mutex and then sleep until it arrives,
// so concurrent goroutines are spread out rather than released together.
// It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
	next     time.Time
}

// NewLimiter creates a limiter allowing rps operations per second. Jitter is
// clamped to [0, 1]. If rps is <= 0 (or the limiter is nil) Wait never blocks.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}

	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	return &Limiter{
		interval: time.Duration(float64(time.Second) / rps),
		jitter:   jitter,
	}
}

// Wait blocks until the caller's slot arrives or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}

	delay := l.reserve(time.Now())
	if delay <= 0 {
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

// reserve claims the next slot and returns how long the caller must wait for it.
func (l *Limiter) reserve(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot := l.next
	if slot.Before(now) {
		slot = now
	}

	step := l.interval
	if l.jitter > 0 {
		// +/- jitter * interval, never below zero
		factor := rand.Float64()*2 - 1
		step += time.Duration(float64(l.interval) * l.jitter * factor)
		if step < 0 {
			step = 0
		}
	}
	l.next = slot.Add(step)

	return slot.Sub(now)
}
