// Package clock provides a mockable time source and hold timers.
// In production it wraps the time package. Tests inject a MockClock so
// quarantine holds can be exercised without sleeping.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock is the interface for time operations.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// NewTimer returns a timer that fires once after d.
	NewTimer(d time.Duration) Timer
}

// Timer is a one-shot, cancellable hold timer.
type Timer interface {
	// Wait blocks until the timer fires or ctx is cancelled.
	// It returns nil when the timer fired and ctx.Err() otherwise.
	Wait(ctx context.Context) error
	// Stop releases the timer. Safe to call after Wait returned.
	Stop()
}

// --- Real clock ---

// RealClock provides the actual system time.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// NewTimer returns a timer backed by time.Timer.
func (RealClock) NewTimer(d time.Duration) Timer {
	if d <= 0 {
		return firedTimer{}
	}
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (rt *realTimer) Wait(ctx context.Context) error {
	select {
	case <-rt.t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rt *realTimer) Stop() { rt.t.Stop() }

// firedTimer is an already-elapsed timer for zero or negative durations.
type firedTimer struct{}

func (firedTimer) Wait(ctx context.Context) error {
	return ctx.Err()
}

func (firedTimer) Stop() {}

// --- Mock clock (for testing) ---

// MockClock is a test clock with controllable time. Advancing it past a
// timer's deadline fires the timer.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
}

// NewMockClock creates a mock clock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: t}
}

// Now returns the mock time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Since returns the duration since t in mock time.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set sets the mock time and fires any timers now due.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
	c.fireDueLocked()
}

// Advance advances the mock time by d and fires any timers now due.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	c.fireDueLocked()
}

// NewTimer returns a timer that fires when the mock time reaches now+d.
func (c *MockClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	mt := &mockTimer{
		deadline: c.current.Add(d),
		fired:    make(chan struct{}),
	}
	if d <= 0 {
		mt.fire()
		return mt
	}
	c.timers = append(c.timers, mt)
	return mt
}

func (c *MockClock) fireDueLocked() {
	remaining := c.timers[:0]
	for _, mt := range c.timers {
		if !mt.deadline.After(c.current) {
			mt.fire()
		} else {
			remaining = append(remaining, mt)
		}
	}
	c.timers = remaining
}

type mockTimer struct {
	deadline time.Time
	once     sync.Once
	fired    chan struct{}
}

func (mt *mockTimer) fire() { mt.once.Do(func() { close(mt.fired) }) }

func (mt *mockTimer) Wait(ctx context.Context) error {
	select {
	case <-mt.fired:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (mt *mockTimer) Stop() {}

// --- Package-level convenience functions ---

// Now returns the current system time.
func Now() time.Time { return time.Now() }

// Since returns the time elapsed since t.
func Since(t time.Time) time.Duration { return time.Since(t) }
