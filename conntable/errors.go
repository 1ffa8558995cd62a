package conntable

import "errors"

// Sentinel errors returned by the table's public operations. Callers should
// use errors.Is rather than comparing values directly, since operations
// sometimes wrap these with additional context (e.g. the offending ip:port).
var (
	// ErrInvalid mirrors EINVAL: a malformed IPv4 literal was supplied.
	ErrInvalid = errors.New("conntable: invalid argument")

	// ErrNoMem mirrors ENOMEM: pool or node allocation failed.
	ErrNoMem = errors.New("conntable: allocation failed")

	// ErrNotFound mirrors ENOENT: no pool exists for the endpoint, or the
	// pool's connection list is empty.
	ErrNotFound = errors.New("conntable: not found")

	// ErrBusy mirrors EBUSY: the node (or every candidate node) is already
	// CONN_LOCKED by another task, or a pool cannot yet be torn down.
	ErrBusy = errors.New("conntable: resource busy")

	// ErrAllPathsDown mirrors EPIPE: every node in the pool is unlocked and
	// sitting in a non-READY terminal state.
	ErrAllPathsDown = errors.New("conntable: all paths down")

	// ErrTimeout is returned by TimedGet when the deadline elapses before an
	// idle connection becomes available, and when the table is torn down
	// while a caller is parked on a pool's wait queue.
	ErrTimeout = errors.New("conntable: timed out waiting for connection")
)
