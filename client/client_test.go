package client

import (
	"testing"
	"time"

	"connpool/codec"
	"connpool/conntable"
	"connpool/loadbalance"
	"connpool/middleware"
	"connpool/registry"
	"connpool/server"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func TestClientWithRegistryAndLB(t *testing.T) {
	svr := server.NewServer()
	svr.Use(middleware.LoggingMiddleware())
	if err := svr.Register(&Arith{}); err != nil {
		t.Fatal(err)
	}
	go svr.Serve("tcp", ":18080", "", nil)
	time.Sleep(100 * time.Millisecond)

	reg := registry.NewMockRegistry()
	reg.Register("Arith", registry.ServiceInstance{Addr: "127.0.0.1:18080", Weight: 1}, 10)

	bal := &loadbalance.RoundRobinBalancer{}
	table := conntable.NewTable()
	cl := NewClient(reg, bal, byte(codec.CodecTypeJSON), table, time.Second)

	reply := &Reply{}
	if err := cl.Call("Arith.Add", &Args{A: 1, B: 2}, reply); err != nil {
		t.Fatal(err)
	}
	if reply.Result != 3 {
		t.Fatalf("expect 3, got %v", reply.Result)
	}

	reply2 := &Reply{}
	if err := cl.Call("Arith.Add", &Args{A: 10, B: 20}, reply2); err != nil {
		t.Fatal(err)
	}
	if reply2.Result != 30 {
		t.Fatalf("expect 30, got %v", reply2.Result)
	}
}

func TestClientMultipleInstances(t *testing.T) {
	svr1 := server.NewServer()
	svr1.Register(&Arith{})
	go svr1.Serve("tcp", ":18081", "", nil)

	svr2 := server.NewServer()
	svr2.Register(&Arith{})
	go svr2.Serve("tcp", ":18082", "", nil)

	time.Sleep(100 * time.Millisecond)

	reg := registry.NewMockRegistry()
	reg.Register("Arith", registry.ServiceInstance{Addr: "127.0.0.1:18081", Weight: 1}, 10)
	reg.Register("Arith", registry.ServiceInstance{Addr: "127.0.0.1:18082", Weight: 1}, 10)

	bal := &loadbalance.RoundRobinBalancer{}
	table := conntable.NewTable()
	cl := NewClient(reg, bal, byte(codec.CodecTypeJSON), table, time.Second)

	for i := 0; i < 10; i++ {
		reply := &Reply{}
		if err := cl.Call("Arith.Add", &Args{A: i, B: i}, reply); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if reply.Result != i*2 {
			t.Fatalf("request %d: expect %d, got %d", i, i*2, reply.Result)
		}
	}
}

// TestClientReusesPooledConnection exercises the pool end to end: the
// second call against the same instance must find the node this client
// dialed for the first call still sitting in the table, READY again after
// being Put back.
func TestClientReusesPooledConnection(t *testing.T) {
	svr := server.NewServer()
	svr.Register(&Arith{})
	go svr.Serve("tcp", ":18083", "", nil)
	time.Sleep(100 * time.Millisecond)

	reg := registry.NewMockRegistry()
	reg.Register("Arith", registry.ServiceInstance{Addr: "127.0.0.1:18083", Weight: 1}, 10)

	bal := &loadbalance.RoundRobinBalancer{}
	table := conntable.NewTable()
	cl := NewClient(reg, bal, byte(codec.CodecTypeJSON), table, time.Second)

	reply := &Reply{}
	if err := cl.Call("Arith.Add", &Args{A: 1, B: 1}, reply); err != nil {
		t.Fatal(err)
	}

	node, err := table.Peek("127.0.0.1", 18083)
	if err != nil {
		t.Fatalf("Peek() after Call() error = %v", err)
	}
	if node.State() != conntable.StateReady {
		t.Fatalf("State() = %s, want READY after the connection was released", node.State())
	}

	reply2 := &Reply{}
	if err := cl.Call("Arith.Add", &Args{A: 2, B: 2}, reply2); err != nil {
		t.Fatal(err)
	}

	node2, err := table.Peek("127.0.0.1", 18083)
	if err != nil {
		t.Fatalf("Peek() after second Call() error = %v", err)
	}
	if node2 != node {
		t.Fatalf("second Call() dialed a new connection instead of reusing the pooled one")
	}
}
