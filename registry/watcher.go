package registry

import (
	"log"
	"net"
	"strconv"

	"connpool/codec"
	"connpool/conntable"
	"connpool/transport"
)

// Watcher keeps a conntable.Table synchronized with a service's discovered
// instance set. It subscribes to Registry.Watch and, on every snapshot,
// dials any newly-seen endpoint and removes any endpoint that dropped out
// — the concrete realization of spec.md §1's "Host allocation... used only
// through thin interfaces" note: discovery decides *which* endpoints
// exist, conntable only stores connections to them.
type Watcher struct {
	serviceName string
	registry    Registry
	table       *conntable.Table
	codecType   codec.CodecType

	known map[string]bool // addr -> present, mirrors what's in the table
}

// NewWatcher builds a Watcher for serviceName. Call Run to start consuming
// registry updates; it blocks until the registry's Watch channel closes.
func NewWatcher(serviceName string, reg Registry, table *conntable.Table, codecType byte) *Watcher {
	return &Watcher{
		serviceName: serviceName,
		registry:    reg,
		table:       table,
		codecType:   codec.CodecType(codecType),
		known:       make(map[string]bool),
	}
}

// Run consumes registry snapshots until the watch channel closes. Intended
// to be run in its own goroutine, the way EtcdRegistry.Register already
// backgrounds its own KeepAlive consumption loop.
func (w *Watcher) Run() {
	for instances := range w.registry.Watch(w.serviceName) {
		w.sync(instances)
	}
}

func (w *Watcher) sync(instances []ServiceInstance) {
	seen := make(map[string]bool, len(instances))
	for _, inst := range instances {
		seen[inst.Addr] = true
		if w.known[inst.Addr] {
			continue
		}
		if err := w.addEndpoint(inst.Addr); err != nil {
			log.Printf("registry: watcher: %s: %v", inst.Addr, err)
			continue
		}
		w.known[inst.Addr] = true
	}

	for addr := range w.known {
		if !seen[addr] && w.removeEndpoint(addr) {
			delete(w.known, addr)
		}
	}
}

func (w *Watcher) addEndpoint(addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return err
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}

	node := conntable.NewNode(host, uint16(port))
	node.Resource = transport.NewClientTransport(conn, w.codecType)
	return w.table.Insert(node)
}

// removeEndpoint drops every node currently pooled for addr and reports
// whether the endpoint is now empty. If the node at the front of the pool
// is held by an in-flight call, Remove reports it busy: removeEndpoint logs
// that, stops, and returns false, so sync keeps addr in known and tries
// again on the next snapshot.
func (w *Watcher) removeEndpoint(addr string) bool {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return true
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return true
	}

	for {
		node, err := w.table.Peek(host, uint16(port))
		if err != nil {
			return true
		}
		if rmErr := w.table.Remove(node); rmErr != nil {
			log.Printf("registry: watcher: %s:%d busy, will retry on next sync: %v", host, port, rmErr)
			return false
		}
		if t, ok := node.Resource.(*transport.ClientTransport); ok {
			t.Close()
		}
		node.Destroy()
	}
}
