package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchdogFiresAfterTimeout(t *testing.T) {
	var w watchdog

	done := make(chan struct{}, 1)
	w.Arm(30*time.Millisecond, func() { done <- struct{}{} })

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected watchdog to fire")
	}
}

func TestWatchdogDisarmPreventsFiring(t *testing.T) {
	var w watchdog

	var fired atomic.Int32
	w.Arm(40*time.Millisecond, func() { fired.Add(1) })
	time.Sleep(10 * time.Millisecond)
	w.Disarm()

	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected no callback after disarm, got %d", fired.Load())
	}
}

func TestWatchdogRearmReplacesPreviousTimer(t *testing.T) {
	var w watchdog

	var first, second atomic.Int32
	w.Arm(20*time.Millisecond, func() { first.Add(1) })
	w.Arm(60*time.Millisecond, func() { second.Add(1) })

	time.Sleep(40 * time.Millisecond)
	if first.Load() != 0 {
		t.Fatal("replaced timer should not fire")
	}

	time.Sleep(80 * time.Millisecond)
	if second.Load() != 1 {
		t.Fatalf("expected rearmed timer to fire once, got %d", second.Load())
	}
}

func TestWatchdogDisarmWithoutArm(t *testing.T) {
	var w watchdog
	w.Disarm()
	w.Disarm()
}
