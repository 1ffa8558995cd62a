package conntable

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Table is the top-level hash table from endpoint key to Pool, guarded by
// one reader/writer lock. It is a fixed-size bucket array with no
// rehashing, per spec.md's Non-goals (dynamic resizing is out of scope).
type Table struct {
	mu      sync.RWMutex
	buckets [][]*Pool
	mask    uint32

	closing atomic.Bool
}

// NewTable builds an empty table. Pools are created lazily by Insert.
func NewTable(opts ...Option) *Table {
	cfg := newTableConfig(opts)
	return &Table{
		buckets: make([][]*Pool, cfg.buckets),
		mask:    uint32(cfg.buckets - 1),
	}
}

func (t *Table) bucketIndex(key uint32) int {
	return int(key & t.mask)
}

// lookupPoolLocked walks the bucket chain for (ip, port), resolving hash
// collisions by content equality as spec.md §4.3 requires. The caller must
// hold at least the read lock.
func (t *Table) lookupPoolLocked(ip string, port uint16) (*Pool, error) {
	key, err := hashKey(ip, port)
	if err != nil {
		return nil, err
	}
	for _, p := range t.buckets[t.bucketIndex(key)] {
		if p.port == port && p.ip == ip {
			return p, nil
		}
	}
	return nil, nil
}

// Insert attaches a pre-initialized node (carrying its target ip/port) to
// the table, creating the node's pool if this is the first connection to
// that endpoint. Implements spec.md §4.4.
func (t *Table) Insert(node *Node) error {
	key, err := hashKey(node.IP, node.Port)
	if err != nil {
		return fmt.Errorf("conntable: insert %s:%d: %w", node.IP, node.Port, err)
	}

	t.mu.Lock()
	pool, _ := t.lookupPoolLocked(node.IP, node.Port)
	if pool == nil {
		// Allocation may block; do it outside the table lock.
		t.mu.Unlock()
		candidate := newPool(node.IP, node.Port, key)
		t.mu.Lock()

		// Re-check after re-locking: a concurrent inserter may have won the
		// race and created the pool while we didn't hold the lock. If so,
		// discard our candidate rather than linking a second pool for the
		// same endpoint (spec.md §9's "insert lost-race" fix).
		pool, _ = t.lookupPoolLocked(node.IP, node.Port)
		if pool == nil {
			pool = candidate
			idx := t.bucketIndex(key)
			t.buckets[idx] = append([]*Pool{pool}, t.buckets[idx]...)
		}
	}

	node.pool = pool
	node.listElem = pool.connList.PushFront(node)
	pool.incConns()
	node.state.Store(int32(StateReady))
	node.stamp()
	pool.incIdle()

	// upref guards the window between dropping the table lock and the
	// wake below: a concurrent destroy that observes nr_idle>0 but an
	// empty wait queue could otherwise free the pool before the wake.
	pool.incUpref()
	t.mu.Unlock()

	pool.wakeOne()
	pool.decUpref()
	return nil
}

// removeNodeLocked implements spec.md §4.5's remove for a single node. The
// caller must hold the table write lock.
func (t *Table) removeNodeLocked(node *Node) error {
	if node.pool == nil {
		return fmt.Errorf("conntable: remove %s:%d: %w", node.IP, node.Port, ErrNotFound)
	}
	if !node.tryLock() {
		return fmt.Errorf("conntable: remove %s:%d: %w", node.IP, node.Port, ErrBusy)
	}

	if node.State() == StateActive {
		node.unlock()
		panic("conntable: remove observed ACTIVE state on an unlocked node")
	}

	pool := node.pool
	if node.State() == StateReady {
		pool.decIdle()
	}
	node.state.Store(int32(StateZombie))
	node.stamp()

	pool.connList.Remove(node.listElem)
	node.listElem = nil
	pool.decConns()
	node.unlock()
	return nil
}

// Remove detaches an attached node from its pool. The caller is
// responsible for calling node.Destroy afterward.
func (t *Table) Remove(node *Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeNodeLocked(node)
}

// Peek returns the first node in the endpoint's conn list for advisory
// inspection: no lock is acquired on the node and no ownership transfer
// occurs. Implements spec.md §4.6.
func (t *Table) Peek(ip string, port uint16) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pool, err := t.lookupPoolLocked(ip, port)
	if err != nil {
		return nil, err
	}
	if pool == nil || pool.connList.Len() == 0 {
		return nil, fmt.Errorf("conntable: peek %s:%d: %w", ip, port, ErrNotFound)
	}
	return pool.connList.Front().Value.(*Node), nil
}

// Iter returns one representative node from the table: the first node of
// the first non-empty pool of the first non-empty bucket. Callers walk the
// whole table by removing each returned node before calling Iter again.
// Implements spec.md §4.7.
func (t *Table) Iter() (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, bucket := range t.buckets {
		for _, pool := range bucket {
			if pool.connList.Len() > 0 {
				return pool.connList.Front().Value.(*Node), nil
			}
		}
	}
	return nil, ErrNotFound
}

// ForEach visits every node currently in the table under the read lock, in
// the same bucket/list order Dump uses. Unlike Iter, ForEach does not
// require the caller to remove nodes as it walks — it's for read-only
// sweeps such as the health-check supervisor's retry scan. visit must not
// call back into this table; doing so deadlocks on the read lock.
func (t *Table) ForEach(visit func(*Node)) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, bucket := range t.buckets {
		for _, pool := range bucket {
			for e := pool.connList.Front(); e != nil; e = e.Next() {
				visit(e.Value.(*Node))
			}
		}
	}
}

// tryClaim scans a pool's connection list for an idle node, implementing
// spec.md §4.8's try_claim. The caller must hold at least the table read
// lock, which excludes concurrent structural changes to the list.
func tryClaim(pool *Pool, startWait time.Time) (*Node, error) {
	if pool.connList.Len() == 0 {
		return nil, ErrNotFound
	}

	sawBusy := false
	for e := pool.connList.Front(); e != nil; e = e.Next() {
		node := e.Value.(*Node)
		if !node.tryLock() {
			// Someone else holds this node; we can't inspect its state,
			// so we must not conclude all paths are down.
			sawBusy = true
			continue
		}
		if node.State() == StateReady {
			pool.decIdle()
			node.state.Store(int32(StateActive))
			node.stats.addWait(time.Since(startWait))
			node.stamp()
			return node, nil
		}
		node.unlock()
	}

	if sawBusy {
		return nil, ErrBusy
	}
	return nil, ErrAllPathsDown
}

// TimedGet acquires an idle connection to (ip, port), blocking on the
// pool's wait queue for up to timeout if every candidate is momentarily
// busy. Implements spec.md §4.8, the centerpiece of the core.
func (t *Table) TimedGet(ip string, port uint16, timeout time.Duration) (*Node, error) {
	start := time.Now()
	remaining := timeout

	for {
		t.mu.RLock()
		pool, err := t.lookupPoolLocked(ip, port)
		if err != nil {
			t.mu.RUnlock()
			return nil, err
		}
		if pool == nil {
			t.mu.RUnlock()
			return nil, fmt.Errorf("conntable: timed_get %s:%d: %w", ip, port, ErrNotFound)
		}

		node, cerr := tryClaim(pool, start)
		if cerr == nil {
			t.mu.RUnlock()
			return node, nil
		}

		switch {
		case errors.Is(cerr, ErrNotFound), errors.Is(cerr, ErrAllPathsDown):
			t.mu.RUnlock()
			return nil, cerr

		case errors.Is(cerr, ErrBusy):
			pool.incUpref()
			t.mu.RUnlock()
			pool.nrWaits.Add(1)

			remaining = pool.waitIdle(remaining, &t.closing)
			pool.decUpref()

			if t.closing.Load() {
				return nil, ErrTimeout
			}
			if remaining <= 0 {
				return nil, ErrTimeout
			}
			continue

		default:
			t.mu.RUnlock()
			return nil, cerr
		}
	}
}

// Put releases a node previously returned by TimedGet, implementing
// spec.md §4.9. If the node isn't ACTIVE (an error-recovery path), it
// simply releases CONN_LOCKED without touching counters or waking anyone.
func (t *Table) Put(node *Node, op Op) {
	if node.State() != StateActive {
		node.unlock()
		return
	}

	pool := node.pool
	node.stats.addLatency(op, time.Since(node.lastTransition()))
	node.state.Store(int32(StateReady))
	node.stamp()

	pool.incUpref()
	pool.incIdle()

	// Release with store ordering so the state/counter updates above are
	// visible to whichever task next claims this node via tryLock.
	node.unlock()

	pool.wakeOne()
	pool.decUpref()
}

// Destroy tears the table down: every node is removed and destroyed,
// every pool that can be freed is freed. Pools that can't yet be torn
// down (busy nodes, pending waiters) are tolerated, logged, and left in
// place. Returns the number of nodes actually removed. Implements
// spec.md §4.10.
//
// Setting the closing flag and broadcasting every pool's wait queue
// resolves spec.md §5's "TBD: check for shutdown in progress": any task
// blocked in TimedGet wakes, observes closing, and returns ErrTimeout
// instead of waiting out its own deadline against a table that no longer
// exists.
func (t *Table) Destroy() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closing.Store(true)
	for _, bucket := range t.buckets {
		for _, pool := range bucket {
			pool.broadcastShutdown()
		}
	}

	removed := 0
	for idx, bucket := range t.buckets {
		kept := bucket[:0]
		for _, pool := range bucket {
			for e := pool.connList.Front(); e != nil; {
				next := e.Next()
				node := e.Value.(*Node)
				if err := t.removeNodeLocked(node); err != nil {
					log.Printf("conntable: destroy: skipping node %s:%d: %v", node.IP, node.Port, err)
				} else {
					node.Destroy()
					removed++
				}
				e = next
			}

			if pool.canDestroyLocked() {
				continue
			}
			log.Printf("conntable: destroy: pool %s:%d busy, not freed", pool.ip, pool.port)
			kept = append(kept, pool)
		}
		t.buckets[idx] = kept
	}
	return removed
}
