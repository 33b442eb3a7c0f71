package report

import (
	"context"
	"time"

	"grimm.is/icebox/internal/clock"
)

// RateLimiter enforces the service's request quota with a fixed window.
// When the window's budget is spent, Acquire blocks until the window rolls
// over.
type RateLimiter struct {
	max    int
	window time.Duration
	clk    clock.Clock

	windowStart time.Time
	count       int
}

// NewRateLimiter creates a limiter of max requests per window. A max of
// zero or less disables limiting.
func NewRateLimiter(max int, window time.Duration, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &RateLimiter{
		max:         max,
		window:      window,
		clk:         clk,
		windowStart: clk.Now(),
	}
}

// Acquire consumes one request slot, blocking if the quota is exhausted.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if r.max <= 0 {
		return nil
	}

	now := r.clk.Now()
	if now.Sub(r.windowStart) >= r.window {
		r.windowStart = now
		r.count = 0
	}

	if r.count >= r.max {
		wait := r.window - now.Sub(r.windowStart)
		if wait > 0 {
			timer := r.clk.NewTimer(wait)
			defer timer.Stop()
			if err := timer.Wait(ctx); err != nil {
				return err
			}
		}
		r.windowStart = r.clk.Now()
		r.count = 0
	}

	r.count++
	return nil
}

// Remaining returns how many slots are left in the current window.
func (r *RateLimiter) Remaining() int {
	if r.max <= 0 {
		return -1
	}
	if r.clk.Now().Sub(r.windowStart) >= r.window {
		return r.max
	}
	return r.max - r.count
}
