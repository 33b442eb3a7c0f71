package clock

import (
	"context"
	"testing"
	"time"
)

func TestNow_ReturnsCurrentTime(t *testing.T) {
	before := time.Now()
	result := Now()
	after := time.Now()

	if result.Before(before) || result.After(after) {
		t.Errorf("Now() returned %v, expected between %v and %v", result, before, after)
	}
}

func TestMockClock_Now(t *testing.T) {
	mockTime := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(mockTime)

	if got := mock.Now(); !got.Equal(mockTime) {
		t.Errorf("MockClock.Now() returned %v, expected exactly %v", got, mockTime)
	}
}

func TestMockClock_Advance(t *testing.T) {
	mockTime := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(mockTime)

	mock.Advance(time.Hour)

	expected := mockTime.Add(time.Hour)
	if got := mock.Now(); !got.Equal(expected) {
		t.Errorf("After Advance, Now() = %v, expected %v", got, expected)
	}
}

func TestMockClock_Since(t *testing.T) {
	mockTime := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(mockTime)

	mock.Advance(90 * time.Second)

	if got := mock.Since(mockTime); got != 90*time.Second {
		t.Errorf("Since = %v, expected 90s", got)
	}
}

func TestRealTimer_ZeroDurationFiresImmediately(t *testing.T) {
	timer := RealClock{}.NewTimer(0)
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := timer.Wait(ctx); err != nil {
		t.Fatalf("Wait on zero-duration timer returned %v", err)
	}
}

func TestRealTimer_WaitCancelled(t *testing.T) {
	timer := RealClock{}.NewTimer(time.Hour)
	defer timer.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := timer.Wait(ctx); err != context.Canceled {
		t.Fatalf("Wait returned %v, expected context.Canceled", err)
	}
}

func TestMockTimer_FiresOnAdvance(t *testing.T) {
	mock := NewMockClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	timer := mock.NewTimer(3 * time.Minute)
	defer timer.Stop()

	done := make(chan error, 1)
	go func() {
		done <- timer.Wait(context.Background())
	}()

	// Not yet due.
	mock.Advance(time.Minute)
	select {
	case err := <-done:
		t.Fatalf("timer fired early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	mock.Advance(2 * time.Minute)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not fire after deadline passed")
	}
}

func TestMockTimer_ZeroDurationAlreadyFired(t *testing.T) {
	mock := NewMockClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	timer := mock.NewTimer(0)
	defer timer.Stop()

	if err := timer.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned %v", err)
	}
}
