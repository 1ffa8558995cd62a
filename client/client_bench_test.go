package client

import (
	"testing"
	"time"

	"connpool/codec"
	"connpool/conntable"
	"connpool/loadbalance"
	"connpool/registry"
	"connpool/server"
)

func setupServerAndClient(b *testing.B, addr string) (*server.Server, *Client) {
	b.Helper()
	svr := server.NewServer()
	if err := svr.Register(&Arith{}); err != nil {
		b.Fatal(err)
	}
	go svr.Serve("tcp", addr, "", nil)
	time.Sleep(100 * time.Millisecond)

	reg := registry.NewMockRegistry()
	reg.Register("Arith", registry.ServiceInstance{Addr: addr}, 10)

	bal := &loadbalance.RoundRobinBalancer{}
	table := conntable.NewTable()
	cl := NewClient(reg, bal, byte(codec.CodecTypeJSON), table, time.Second)

	return svr, cl
}

// BenchmarkSerialCall measures single-goroutine, serial RPC calls through
// the pool-backed client.
func BenchmarkSerialCall(b *testing.B) {
	svr, cl := setupServerAndClient(b, "127.0.0.1:29090")
	b.Cleanup(func() { svr.Shutdown(3 * time.Second) })

	args := &Args{A: 1, B: 2}
	reply := &Reply{}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := cl.Call("Arith.Add", args, reply); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkConcurrentCall drives many goroutines through the same client,
// exercising the pool's wait-queue path under contention.
func BenchmarkConcurrentCall(b *testing.B) {
	svr, cl := setupServerAndClient(b, "127.0.0.1:29091")
	b.Cleanup(func() { svr.Shutdown(3 * time.Second) })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		args := &Args{A: 1, B: 2}
		reply := &Reply{}
		for pb.Next() {
			if err := cl.Call("Arith.Add", args, reply); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
