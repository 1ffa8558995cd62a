package conntable

import "testing"

func TestNewNodeInitialState(t *testing.T) {
	n := NewNode("10.0.0.1", 6379)

	if got := n.State(); got != StateDown {
		t.Fatalf("State() = %s, want DOWN", got)
	}
	if n.locked.Load() {
		t.Fatalf("freshly created node has CONN_LOCKED set")
	}
	if n.NrRetryAttempts() != 0 {
		t.Fatalf("NrRetryAttempts() = %d, want 0", n.NrRetryAttempts())
	}
}

func TestMarkRetryThenMarkReady(t *testing.T) {
	n := NewNode("10.0.0.1", 6379)
	if !n.tryLock() {
		t.Fatalf("tryLock() failed on a fresh node")
	}

	n.MarkRetry()
	if n.State() != StateRetry {
		t.Fatalf("State() = %s, want RETRY", n.State())
	}
	if !n.locked.Load() {
		t.Fatalf("mark_retry must not release CONN_LOCKED")
	}

	n.MarkReady()
	if n.State() != StateReady {
		t.Fatalf("State() = %s, want READY", n.State())
	}
	if n.locked.Load() {
		t.Fatalf("mark_ready must release CONN_LOCKED")
	}
}

func TestMarkReadyNoopWhenNotRetry(t *testing.T) {
	n := NewNode("10.0.0.1", 6379)
	if !n.tryLock() {
		t.Fatalf("tryLock() failed on a fresh node")
	}

	n.MarkReady()
	if n.State() != StateDown {
		t.Fatalf("mark_ready from DOWN must be a no-op, got %s", n.State())
	}
	if !n.locked.Load() {
		t.Fatalf("mark_ready no-op must not release CONN_LOCKED")
	}
}

func TestMarkFailedFromActiveAndRetry(t *testing.T) {
	for _, start := range []State{StateActive, StateRetry} {
		n := NewNode("10.0.0.1", 6379)
		if !n.tryLock() {
			t.Fatalf("tryLock() failed on a fresh node")
		}
		n.state.Store(int32(start))

		if err := n.MarkFailed(); err != nil {
			t.Fatalf("MarkFailed() from %s: %v", start, err)
		}
		if n.State() != StateFailed {
			t.Fatalf("State() = %s, want FAILED", n.State())
		}
		if n.locked.Load() {
			t.Fatalf("mark_failed must release CONN_LOCKED")
		}
	}
}

func TestMarkFailedInvalidState(t *testing.T) {
	n := NewNode("10.0.0.1", 6379)
	if !n.tryLock() {
		t.Fatalf("tryLock() failed on a fresh node")
	}

	if err := n.MarkFailed(); err == nil {
		t.Fatalf("MarkFailed() from DOWN: want error, got nil")
	}
}
