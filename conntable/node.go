package conntable

import (
	"container/list"
	"fmt"
	"sync/atomic"
	"time"
)

// State is a connection node's lifecycle state, per spec.md's Data Model.
type State int32

const (
	StateDown State = iota
	StateReady
	StateActive
	StateRetry
	StateFailed
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateDown:
		return "DOWN"
	case StateReady:
		return "READY"
	case StateActive:
		return "ACTIVE"
	case StateRetry:
		return "RETRY"
	case StateFailed:
		return "FAILED"
	case StateZombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

// Node represents one reusable connection to an endpoint. It owns a
// per-node exclusivity bit (the "conn lock"), a lifecycle state, a retry
// counter, and per-connection statistics updated without that lock.
//
// Go has no allocation-failure error path the way the C source does
// (conntable_v2.c's node_init "fails with OOM"); NewNode therefore never
// returns an error. ErrNoMem remains defined in errors.go for API parity
// with the rest of the core's error taxonomy and is reserved for future use
// by a pooled/arena allocator, should one replace plain `new`.
type Node struct {
	IP   string
	Port uint16

	// Resource is an opaque slot for whatever the owning layer attaches to
	// an acquired connection (a *transport.ClientTransport, for example).
	// The core never reads, type-asserts, or closes it.
	Resource any

	pool *Pool

	locked atomic.Bool // CONN_LOCKED
	state  atomic.Int32

	nowNanos        atomic.Int64 // UnixNano of last state transition
	nrRetryAttempts atomic.Uint64

	stats stats
	clk   clock

	listElem *list.Element // this node's element within pool.connList, once attached
}

// NewNode allocates a connection node targeting (ip, port) in state DOWN,
// ready to be handed to Table.Insert.
func NewNode(ip string, port uint16) *Node {
	n := &Node{
		IP:   ip,
		Port: port,
		clk:  realClock{},
	}
	n.state.Store(int32(StateDown))
	n.stamp()
	return n
}

// Destroy releases a node after it has been removed from its pool. Calling
// it on a node still attached to a pool's list is a caller bug.
func (n *Node) Destroy() {
	n.pool = nil
	n.listElem = nil
	n.Resource = nil
}

// State returns the node's current lifecycle state. Safe to call without
// holding CONN_LOCKED; reads race benignly with concurrent transitions the
// same way conntable_v2.c's mark_ready documents.
func (n *Node) State() State {
	return State(n.state.Load())
}

func (n *Node) stamp() {
	n.nowNanos.Store(n.clk.now().UnixNano())
}

func (n *Node) lastTransition() time.Time {
	return time.Unix(0, n.nowNanos.Load())
}

// NrRetryAttempts returns the monotonically increasing retry counter.
func (n *Node) NrRetryAttempts() uint64 {
	return n.nrRetryAttempts.Load()
}

// IncRetryAttempts bumps the retry counter. Called by the retry-policy
// collaborator (spec.md's health layer), never by the core itself.
func (n *Node) IncRetryAttempts() {
	n.nrRetryAttempts.Add(1)
}

// AddTxBytes accumulates bytes sent over this connection. Called by the
// transport-owning collaborator (client.Call) as frames go out; updated
// without CONN_LOCKED, matching spec.md's Data Model for tx_bytes.
func (n *Node) AddTxBytes(nbytes uint64) {
	n.stats.txBytes.Add(nbytes)
}

// AddRxBytes accumulates bytes received over this connection. Called by the
// transport-owning collaborator (client.Call) as replies come in; updated
// without CONN_LOCKED, matching spec.md's Data Model for rx_bytes.
func (n *Node) AddRxBytes(nbytes uint64) {
	n.stats.rxBytes.Add(nbytes)
}

// tryLock attempts to claim CONN_LOCKED with acquire semantics, mirroring
// conntable_v2.c's atomic test-and-set-bit-lock. Reports whether the lock
// was acquired.
func (n *Node) tryLock() bool {
	return n.locked.CompareAndSwap(false, true)
}

// unlock clears CONN_LOCKED with release semantics: every store a caller
// made to the node before calling unlock becomes visible to whichever task
// next succeeds at tryLock.
func (n *Node) unlock() {
	n.locked.Store(false)
}

// TryAcquireForProbe claims CONN_LOCKED for an out-of-band probe driven by
// a retry-policy collaborator outside the core (see the health package).
// It's the same test-and-set tryClaim itself uses, exported for callers
// that aren't going through TimedGet — a FAILED node is never claimable
// via TimedGet's READY-only scan, so the retry-policy layer needs its own
// door in.
func (n *Node) TryAcquireForProbe() bool {
	return n.tryLock()
}

// AbortProbe releases CONN_LOCKED without any state transition, for a
// caller that acquired it via TryAcquireForProbe but decided, after
// re-checking state, not to act.
func (n *Node) AbortProbe() {
	n.unlock()
}

// MarkFailed transitions ACTIVE or RETRY to FAILED and releases
// CONN_LOCKED. The caller must already hold the lock.
//
// conntable_v2.c's mark_failed clears the lock bit and only then stores
// the FAILED state — a window in which a racing task that just acquired
// the lock observes the pre-transition state. spec.md's Design Notes flag
// this as a bug to fix, not preserve: this implementation stores the new
// state before releasing the lock.
func (n *Node) MarkFailed() error {
	switch n.State() {
	case StateActive, StateRetry:
	default:
		return fmt.Errorf("conntable: mark_failed from state %s: %w", n.State(), ErrInvalid)
	}
	n.state.Store(int32(StateFailed))
	n.stamp()
	n.unlock()
	return nil
}

// MarkRetry transitions to RETRY. The caller must have just acquired
// CONN_LOCKED and keeps holding it afterward — retry probing proceeds
// under exclusive ownership. A node leaving READY this way is taken off
// its pool's idle count.
func (n *Node) MarkRetry() {
	prev := State(n.state.Swap(int32(StateRetry)))
	if prev == StateReady && n.pool != nil {
		n.pool.decIdle()
	}
	n.stamp()
}

// MarkReady transitions RETRY to READY, adds the node back to its pool's
// idle count, releases CONN_LOCKED, and wakes one waiter. A no-op
// when the current state isn't RETRY. The caller must hold CONN_LOCKED
// when the state is RETRY; conntable_v2.c's mark_ready reads the state
// once, unlocked, before acquiring the lock to decide whether to act — a
// benign race preserved here only in the sense that the read above (via
// State()) is itself lock-free, relying on RETRY only ever being set while
// CONN_LOCKED is held.
func (n *Node) MarkReady() {
	if n.State() != StateRetry {
		return
	}
	n.state.Store(int32(StateReady))
	n.stamp()
	pool := n.pool
	if pool != nil {
		pool.incIdle()
	}
	n.unlock()
	if pool != nil {
		pool.wakeOne()
	}
}
