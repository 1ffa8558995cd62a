// Package health implements the retry-policy collaborator spec.md
// explicitly places out of the core's scope: "Retry policy driving
// CONN_RETRY → CONN_READY transitions (a higher layer decides when to
// probe a failed path)". conntable only guards the state transitions;
// this package decides when to attempt them.
package health

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Prober checks whether an endpoint is reachable again.
type Prober interface {
	Probe(ip string, port uint16) error
}

// DefaultProber probes an endpoint with a plain TCP dial-and-close.
type DefaultProber struct {
	Timeout time.Duration
}

// Probe dials (ip, port) and closes the connection immediately on
// success. A successful dial is the only signal this prober needs — it
// doesn't attempt any protocol handshake.
func (p DefaultProber) Probe(ip string, port uint16) error {
	addr := net.JoinHostPort(ip, strconv.Itoa(int(port)))
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("health: probe %s: %w", addr, err)
	}
	return conn.Close()
}
