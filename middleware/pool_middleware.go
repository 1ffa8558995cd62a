package middleware

import (
	"context"
	"fmt"
	"time"

	"connpool/conntable"
	"connpool/message"
)

type poolNodeKey struct{}

// NodeFromContext retrieves the connection AcquireMiddleware attached to
// ctx, for handlers that need to talk to the downstream endpoint the
// middleware acquired on their behalf.
func NodeFromContext(ctx context.Context) (*conntable.Node, bool) {
	n, ok := ctx.Value(poolNodeKey{}).(*conntable.Node)
	return n, ok
}

// AcquireMiddleware wraps a handler with a pooled connection to a fixed
// downstream endpoint: it acquires a node from table before calling next,
// makes the node available via NodeFromContext, and releases it with
// table.Put once next returns — regardless of whether next succeeded.
//
// If acquisition fails (EBUSY/EPIPE/timeout/ENOENT — see conntable's error
// taxonomy), the request is short-circuited the same way RateLimitMiddleware
// rejects without calling next.
func AcquireMiddleware(table *conntable.Table, ip string, port uint16, timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			node, err := table.TimedGet(ip, port, timeout)
			if err != nil {
				return &message.RPCMessage{
					Error: fmt.Sprintf("pool: acquire %s:%d: %v", ip, port, err),
				}
			}

			ctx = context.WithValue(ctx, poolNodeKey{}, node)
			resp := next(ctx, req)
			table.Put(node, conntable.OpGet)
			return resp
		}
	}
}
