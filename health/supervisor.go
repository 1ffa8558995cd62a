package health

import (
	"log"
	"sync"
	"time"

	"connpool/conntable"
)

// Supervisor walks a conntable.Table looking for FAILED nodes and drives
// them through RETRY back to READY (or back to FAILED on a failed probe),
// backing off exponentially between attempts per node — the same
// base-delay-doubling shape as middleware.RetryMiddleware, applied here to
// probe attempts instead of RPC retries.
type Supervisor struct {
	table  *conntable.Table
	prober Prober

	baseDelay  time.Duration
	maxBackoff time.Duration

	mu        sync.Mutex
	nextProbe map[*conntable.Node]time.Time

	stop chan struct{}
}

// NewSupervisor builds a Supervisor. baseDelay is the backoff after the
// first failed retry attempt; maxBackoff caps it (0 means unbounded).
func NewSupervisor(table *conntable.Table, prober Prober, baseDelay, maxBackoff time.Duration) *Supervisor {
	return &Supervisor{
		table:      table,
		prober:     prober,
		baseDelay:  baseDelay,
		maxBackoff: maxBackoff,
		nextProbe:  make(map[*conntable.Node]time.Time),
		stop:       make(chan struct{}),
	}
}

// Run sweeps the table every interval until Stop is called. Intended to
// run in its own goroutine.
func (s *Supervisor) Run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// Stop ends the supervisor's run loop.
func (s *Supervisor) Stop() {
	close(s.stop)
}

func (s *Supervisor) sweep() {
	now := time.Now()

	var due []*conntable.Node
	s.table.ForEach(func(n *conntable.Node) {
		if n.State() != conntable.StateFailed {
			return
		}
		s.mu.Lock()
		next, scheduled := s.nextProbe[n]
		s.mu.Unlock()
		if scheduled && now.Before(next) {
			return
		}
		due = append(due, n)
	})

	for _, node := range due {
		s.probeOne(node)
	}
}

// probeOne claims a single FAILED node, transitions it through RETRY, and
// resolves to READY or back to FAILED depending on the probe result.
// conntable_v2.c leaves who drives FAILED→RETRY unspecified; this is that
// driver, incrementing the node's retry counter on every attempt.
func (s *Supervisor) probeOne(node *conntable.Node) {
	if !node.TryAcquireForProbe() {
		return
	}
	if node.State() != conntable.StateFailed {
		node.AbortProbe()
		return
	}

	node.MarkRetry()
	node.IncRetryAttempts()

	err := s.prober.Probe(node.IP, node.Port)
	if err == nil {
		node.MarkReady()
		s.mu.Lock()
		delete(s.nextProbe, node)
		s.mu.Unlock()
		log.Printf("health: %s:%d recovered, marked READY", node.IP, node.Port)
		return
	}

	_ = node.MarkFailed()
	s.mu.Lock()
	s.nextProbe[node] = time.Now().Add(s.backoff(node.NrRetryAttempts()))
	s.mu.Unlock()
	log.Printf("health: %s:%d still down (attempt %d): %v", node.IP, node.Port, node.NrRetryAttempts(), err)
}

func (s *Supervisor) backoff(attempts uint64) time.Duration {
	shift := attempts - 1
	if shift > 16 {
		shift = 16
	}
	d := s.baseDelay * time.Duration(uint64(1)<<shift)
	if s.maxBackoff > 0 && d > s.maxBackoff {
		return s.maxBackoff
	}
	return d
}
