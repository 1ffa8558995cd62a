package middleware

import (
	"context"
	"testing"
	"time"

	"connpool/conntable"
	"connpool/message"
)

func TestAcquireMiddlewareProvidesNodeAndReleasesIt(t *testing.T) {
	table := conntable.NewTable()
	if err := table.Insert(conntable.NewNode("10.0.0.1", 6379)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	var gotNode *conntable.Node
	handler := AcquireMiddleware(table, "10.0.0.1", 6379, 100*time.Millisecond)(func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
		node, ok := NodeFromContext(ctx)
		if !ok {
			t.Fatalf("NodeFromContext() found no node")
		}
		gotNode = node
		if node.State() != conntable.StateActive {
			t.Fatalf("State() = %s, want ACTIVE while the handler runs", node.State())
		}
		return &message.RPCMessage{}
	})

	resp := handler(context.Background(), &message.RPCMessage{})
	if resp.Error != "" {
		t.Fatalf("handler returned error: %s", resp.Error)
	}
	if gotNode.State() != conntable.StateReady {
		t.Fatalf("State() = %s, want READY after AcquireMiddleware released it", gotNode.State())
	}
}

func TestAcquireMiddlewareShortCircuitsOnUnknownEndpoint(t *testing.T) {
	table := conntable.NewTable()
	called := false
	handler := AcquireMiddleware(table, "10.0.0.9", 6379, 50*time.Millisecond)(func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
		called = true
		return &message.RPCMessage{}
	})

	resp := handler(context.Background(), &message.RPCMessage{})
	if resp.Error == "" {
		t.Fatalf("expected an error response for an unknown endpoint")
	}
	if called {
		t.Fatalf("handler must not run when acquisition fails")
	}
}
