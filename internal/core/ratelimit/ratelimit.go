// Package ratelimit implements the token bucket that gates all outbound
// tracker writes.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Limiter is a token bucket. Tokens refill continuously at a fixed rate and
// the bucket never holds more than burst tokens. Acquire blocks until a token
// is available; it fails only when the context is canceled.
type Limiter struct {
	mu        sync.Mutex
	perSecond float64
	burst     float64
	tokens    float64
	last      time.Time

	// Overridable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter refilling at perSecond tokens per second with the
// given bucket capacity. The bucket starts full.
func New(perSecond float64, burst int) *Limiter {
	l := &Limiter{
		perSecond: perSecond,
		burst:     float64(burst),
		tokens:    float64(burst),
		now:       time.Now,
		sleep:     sleepCtx,
	}
	l.last = l.now()
	return l
}

// Acquire removes one token, waiting for a refill when the bucket is empty.
// The wait is computed optimistically; concurrent waiters recompute after
// their own sleep, so fairness is arrival-order only as far as the scheduler
// preserves it.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		l.refill()
		if l.tokens >= 1 {
			l.tokens--
			return nil
		}

		waitMs := math.Ceil((1 - l.tokens) / (l.perSecond / 1000))
		wait := time.Duration(waitMs) * time.Millisecond

		l.mu.Unlock()
		err := l.sleep(ctx, wait)
		l.mu.Lock()
		if err != nil {
			return err
		}
	}
}

// refill tops the bucket up for the time elapsed since the last refill,
// capped at the burst capacity. Partial tokens carry forward.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.last)
	l.last = now

	l.tokens = math.Min(l.burst, l.tokens+elapsed.Seconds()*l.perSecond)
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
