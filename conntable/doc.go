// Package conntable implements an in-process connection-pool hash table:
// a registry that groups reusable network connections by remote endpoint
// (IPv4 address, TCP port) and hands them out to callers under strict
// mutual exclusion, with bounded waiting when no idle connection is
// available.
//
// Three types compose the core, leaves first: Node (one reusable
// connection, with its own exclusivity bit and lifecycle state), Pool (all
// connections to one endpoint, with an idle/total count, a reference
// counter, and a wait queue), and Table (the bucket array mapping endpoint
// to pool, guarded by one reader/writer lock).
//
// The actual network I/O performed on an acquired connection, the retry
// policy driving RETRY back to READY, and endpoint discovery are all
// out of scope here by design — they belong to the collaborators that sit
// around this package (see the transport, health, and registry packages).
package conntable
