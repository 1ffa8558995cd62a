// Package client implements the RPC client with service discovery, load
// balancing, and a conntable-backed connection pool.
//
// Call flow:
//
//	Call("Arith.Add", args, reply)
//	  → Registry.Discover("Arith")      → get instance list from etcd
//	  → Balancer.Pick(instances)         → select one address
//	  → table.TimedGet(ip, port, ...)    → acquire an exclusive transport
//	  → transport.Send()                 → send request, get response channel
//	  → <-channel                        → wait for response
//	  → table.Put(node, OpGet)           → release the transport back to the pool
//	  → json.Unmarshal → reply           → done
package client

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"connpool/codec"
	"connpool/conntable"
	"connpool/loadbalance"
	"connpool/registry"
	"connpool/transport"
)

// Client manages the full RPC call lifecycle: service discovery → load
// balancing → pooled transport acquisition → call → release.
type Client struct {
	registry registry.Registry   // Service discovery (etcd or mock)
	balancer loadbalance.Balancer // Load balancing strategy
	table    *conntable.Table     // Endpoint → pooled *transport.ClientTransport

	codecType      codec.CodecType
	acquireTimeout time.Duration // How long Call waits for a transport before giving up
}

// NewClient creates a client with the given registry, load balancer, codec
// type, connection table, and per-call acquisition timeout.
//
// The table is shared, constructor-injected state rather than something
// Client builds for itself — it's the same conntable.Table a health
// supervisor or registry watcher may also be driving, so all three agree
// on what "an endpoint's pool" means.
func NewClient(reg registry.Registry, bal loadbalance.Balancer, codecType byte, table *conntable.Table, acquireTimeout time.Duration) *Client {
	return &Client{
		registry:       reg,
		balancer:       bal,
		table:          table,
		codecType:      codec.CodecType(codecType),
		acquireTimeout: acquireTimeout,
	}
}

// ensureDialed makes sure at least one connection exists in the table for
// addr, dialing and inserting one if the table has never seen this
// endpoint before. conntable itself never dials anything — that's
// deliberately out of its scope (spec.md §1's "actual network I/O... after
// acquired" and "host allocation" out-of-scope notes) — so the client owns
// the dial-on-first-use policy.
func (c *Client) ensureDialed(ip string, port uint16, addr string) error {
	if _, err := c.table.Peek(ip, port); err == nil {
		return nil
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", addr, err)
	}

	node := conntable.NewNode(ip, port)
	node.Resource = transport.NewClientTransport(conn, c.codecType)
	return c.table.Insert(node)
}

func splitAddr(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("client: bad address %q: %w", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("client: bad port in %q: %w", addr, err)
	}
	return host, uint16(port), nil
}

// Call performs a synchronous RPC call.
//
// Steps:
//  1. Parse serviceMethod ("Arith.Add" → service="Arith")
//  2. Discover instances from registry
//  3. Pick an instance using the load balancer
//  4. Acquire a pooled transport for that instance via the connection table
//  5. Send the request and wait for the response
//  6. Release the transport back to the pool
//  7. Unmarshal the response payload into reply
func (c *Client) Call(serviceMethod string, args any, reply any) error {
	split := strings.Split(serviceMethod, ".")
	if len(split) != 2 {
		return fmt.Errorf("client: invalid serviceMethod format: %v", serviceMethod)
	}
	serviceName := split[0]

	instances, err := c.registry.Discover(serviceName)
	if err != nil {
		return err
	}

	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return err
	}

	ip, port, err := splitAddr(instance.Addr)
	if err != nil {
		return err
	}
	if err := c.ensureDialed(ip, port, instance.Addr); err != nil {
		return err
	}

	node, err := c.table.TimedGet(ip, port, c.acquireTimeout)
	if err != nil {
		return fmt.Errorf("client: acquire connection to %s: %w", instance.Addr, err)
	}

	t := node.Resource.(*transport.ClientTransport)
	_, ch, sentBytes, err := t.Send(serviceMethod, args)
	if err != nil {
		c.retire(node, t)
		return err
	}
	node.AddTxBytes(uint64(sentBytes))

	resp := <-ch
	node.AddRxBytes(uint64(len(resp.Payload)))
	if resp.Error != "" {
		c.table.Put(node, conntable.OpGet)
		return fmt.Errorf("client: server error: %v", resp.Error)
	}

	c.table.Put(node, conntable.OpGet)
	return json.Unmarshal(resp.Payload, &reply)
}

// retire removes a node whose transport failed and releases its
// underlying connection. The node still holds CONN_LOCKED (it was
// returned ACTIVE by TimedGet), which MarkFailed's precondition requires.
func (c *Client) retire(node *conntable.Node, t *transport.ClientTransport) {
	if err := node.MarkFailed(); err != nil {
		return
	}
	if err := c.table.Remove(node); err != nil {
		return
	}
	node.Destroy()
	t.Close()
}
