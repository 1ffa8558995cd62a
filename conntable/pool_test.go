package conntable

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolCanDestroyLockedFreshPool(t *testing.T) {
	p := newPool("10.0.0.1", 6379, 0)
	if !p.canDestroyLocked() {
		t.Fatalf("fresh pool should be destroyable")
	}
}

func TestPoolCanDestroyLockedBusyOnUpref(t *testing.T) {
	p := newPool("10.0.0.1", 6379, 0)
	p.incUpref()
	if p.canDestroyLocked() {
		t.Fatalf("pool with upref>0 should not be destroyable")
	}
	p.decUpref()
	if !p.canDestroyLocked() {
		t.Fatalf("pool should be destroyable once upref returns to 0")
	}
}

func TestPoolCanDestroyLockedBusyOnConnList(t *testing.T) {
	p := newPool("10.0.0.1", 6379, 0)
	n := NewNode("10.0.0.1", 6379)
	n.listElem = p.connList.PushFront(n)
	p.incConns()

	if p.canDestroyLocked() {
		t.Fatalf("pool with a non-empty conn list should not be destroyable")
	}
}

func TestPoolWaitIdleTimesOut(t *testing.T) {
	p := newPool("10.0.0.1", 6379, 0)
	var closing atomic.Bool

	start := time.Now()
	remaining := p.waitIdle(30*time.Millisecond, &closing)
	elapsed := time.Since(start)

	if remaining != 0 {
		t.Fatalf("waitIdle() remaining = %v, want 0", remaining)
	}
	if elapsed < 20*time.Millisecond {
		t.Fatalf("waitIdle() returned too early: %v", elapsed)
	}
}

func TestPoolWaitIdleWakesOnIdleIncrement(t *testing.T) {
	p := newPool("10.0.0.1", 6379, 0)
	var closing atomic.Bool

	done := make(chan time.Duration, 1)
	go func() {
		done <- p.waitIdle(time.Second, &closing)
	}()

	time.Sleep(20 * time.Millisecond)
	p.incIdle()
	p.wakeOne()

	select {
	case remaining := <-done:
		if remaining <= 0 {
			t.Fatalf("waitIdle() woke with remaining = %v, want > 0", remaining)
		}
	case <-time.After(time.Second):
		t.Fatalf("waitIdle() did not wake within 1s of incIdle+wakeOne")
	}
}

func TestPoolWaitIdleWakesOnClosing(t *testing.T) {
	p := newPool("10.0.0.1", 6379, 0)
	var closing atomic.Bool

	done := make(chan time.Duration, 1)
	go func() {
		done <- p.waitIdle(time.Second, &closing)
	}()

	time.Sleep(20 * time.Millisecond)
	closing.Store(true)
	p.broadcastShutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("waitIdle() did not wake within 1s of shutdown broadcast")
	}
}
