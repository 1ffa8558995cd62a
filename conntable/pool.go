package conntable

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Pool aggregates all connection nodes for one endpoint (ip, port): a list
// of nodes, idle/total counts, a transient reference counter ("upref")
// that protects the pool from destruction while it is borrowed outside the
// table lock, and a wait queue for tasks blocked waiting for an idle
// connection to appear.
//
// connList is structurally mutated only under the owning Table's write
// lock (insert, remove, destroy); per-node state flips (try_claim, Put)
// happen under the table's read lock, protected instead by the node's own
// CONN_LOCKED bit, with counters kept as atomics so concurrent readers
// never need a pool-private mutex for them.
type Pool struct {
	ip   string
	port uint16
	key  uint32

	connList *list.List // of *Node; front = most recently inserted

	condMu sync.Mutex
	cond   *sync.Cond

	upref             atomic.Int64
	waiters           atomic.Int64
	nrConnections     atomic.Int64
	nrIdleConnections atomic.Int64
	nrWaits           atomic.Uint64
}

func newPool(ip string, port uint16, key uint32) *Pool {
	p := &Pool{
		ip:       ip,
		port:     port,
		key:      key,
		connList: list.New(),
	}
	p.cond = sync.NewCond(&p.condMu)
	return p
}

func (p *Pool) incUpref() { p.upref.Add(1) }
func (p *Pool) decUpref() { p.upref.Add(-1) }
func (p *Pool) incIdle()  { p.nrIdleConnections.Add(1) }
func (p *Pool) decIdle()  { p.nrIdleConnections.Add(-1) }
func (p *Pool) incConns() { p.nrConnections.Add(1) }
func (p *Pool) decConns() { p.nrConnections.Add(-1) }

// canDestroyLocked reports whether this pool satisfies all four teardown
// preconditions from spec.md §3's Connection Pool lifecycle: upref==0,
// empty wait queue, empty conn list. The caller must hold the table write
// lock (structural pool state doesn't change underneath it).
func (p *Pool) canDestroyLocked() bool {
	return p.upref.Load() == 0 && p.waiters.Load() == 0 && p.connList.Len() == 0
}

// wakeOne wakes exactly one blocked waiter, matching spec.md §4.9/§5's
// "wake one per release" requirement — never a broadcast, to avoid a
// thundering herd where every waiter re-scans the list to find one winner.
func (p *Pool) wakeOne() {
	p.condMu.Lock()
	p.cond.Signal()
	p.condMu.Unlock()
}

// broadcastShutdown wakes every waiter unconditionally. Only Table.Destroy
// calls this — shutdown is the one case spec.md's wake protocol allows a
// broadcast, since every waiter must re-check the table's closing flag and
// give up rather than keep waiting for a connection that will never come.
func (p *Pool) broadcastShutdown() {
	p.condMu.Lock()
	p.cond.Broadcast()
	p.condMu.Unlock()
}

// waitIdle blocks until nr_idle_connections > 0, timeout elapses, or
// closing becomes true, returning the remaining timeout (0 if it elapsed).
// This is wait_on(pool.wq, nr_idle>0, timeout) from spec.md §4.8, grounded
// on the sync.Cond + time.AfterFunc deadline-wake pattern used by the
// db-bouncer connection pool in the examples pack, rather than a bespoke
// timer/channel reimplementation.
func (p *Pool) waitIdle(timeout time.Duration, closing *atomic.Bool) time.Duration {
	deadline := time.Now().Add(timeout)

	p.waiters.Add(1)
	defer p.waiters.Add(-1)

	p.condMu.Lock()
	defer p.condMu.Unlock()

	for p.nrIdleConnections.Load() == 0 && !closing.Load() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0
		}
		// Broadcast, not Signal: the cond is shared by every waiter on this
		// pool, and this timer only concerns the present goroutine's own
		// deadline. A Signal could instead wake an unrelated waiter whose
		// own deadline hasn't elapsed. Broadcasting here wakes everyone to
		// re-check their own predicate/deadline, which is the one place
		// besides shutdown where a broadcast is correct.
		timer := time.AfterFunc(remaining, func() {
			p.condMu.Lock()
			p.cond.Broadcast()
			p.condMu.Unlock()
		})
		p.cond.Wait()
		timer.Stop()
	}

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
