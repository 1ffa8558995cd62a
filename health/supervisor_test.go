package health

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"connpool/conntable"
)

type fakeProber struct {
	fail atomic.Bool
	n    atomic.Int64
}

func (f *fakeProber) Probe(ip string, port uint16) error {
	f.n.Add(1)
	if f.fail.Load() {
		return errors.New("probe failed")
	}
	return nil
}

func TestSupervisorRecoversFailedNode(t *testing.T) {
	table := conntable.NewTable()
	n := conntable.NewNode("10.0.0.1", 6379)
	if err := table.Insert(n); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	// Insert always attaches a node as READY; force it to FAILED as the
	// scenario requires, now that it's attached to its pool.
	if !n.TryAcquireForProbe() {
		t.Fatalf("TryAcquireForProbe() failed on a freshly inserted node")
	}
	n.MarkRetry()
	if err := n.MarkFailed(); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	prober := &fakeProber{}
	sup := NewSupervisor(table, prober, 10*time.Millisecond, 0)
	sup.probeOne(n)

	if n.State() != conntable.StateReady {
		t.Fatalf("State() = %s, want READY after a successful probe", n.State())
	}
	if prober.n.Load() != 1 {
		t.Fatalf("probe called %d times, want 1", prober.n.Load())
	}
	if n.NrRetryAttempts() != 1 {
		t.Fatalf("NrRetryAttempts() = %d, want 1", n.NrRetryAttempts())
	}
}

func TestSupervisorBacksOffOnRepeatedFailure(t *testing.T) {
	table := conntable.NewTable()
	n := conntable.NewNode("10.0.0.1", 6379)
	if err := table.Insert(n); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if !n.TryAcquireForProbe() {
		t.Fatalf("TryAcquireForProbe() failed")
	}
	n.MarkRetry()
	_ = n.MarkFailed()

	prober := &fakeProber{}
	prober.fail.Store(true)
	sup := NewSupervisor(table, prober, 50*time.Millisecond, time.Second)

	sup.probeOne(n)
	if n.State() != conntable.StateFailed {
		t.Fatalf("State() = %s, want FAILED after a failed probe", n.State())
	}

	sup.mu.Lock()
	_, scheduled := sup.nextProbe[n]
	sup.mu.Unlock()
	if !scheduled {
		t.Fatalf("expected a backoff entry for the node after a failed probe")
	}

	// A second sweep immediately after should skip the node (still backing
	// off) rather than probing it again.
	sup.sweep()
	if prober.n.Load() != 1 {
		t.Fatalf("probe called %d times, want 1 (second sweep should have been skipped)", prober.n.Load())
	}
}

func TestSupervisorIgnoresNonFailedNodes(t *testing.T) {
	table := conntable.NewTable()
	n := conntable.NewNode("10.0.0.1", 6379)
	if err := table.Insert(n); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	prober := &fakeProber{}
	sup := NewSupervisor(table, prober, time.Millisecond, 0)
	sup.sweep()

	if prober.n.Load() != 0 {
		t.Fatalf("probe called %d times, want 0 for a READY node", prober.n.Load())
	}
}
