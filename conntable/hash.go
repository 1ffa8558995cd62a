package conntable

import (
	"fmt"
	"hash/maphash"
	"net"
	"sync"
)

// hashSeed is initialized exactly once per process from a system random
// source (maphash.MakeSeed pulls from the runtime's own entropy pool) and
// never changes afterward, matching spec.md's "process-lifetime random
// seed" requirement for the table's hash key.
var (
	hashSeedOnce sync.Once
	hashSeed     maphash.Seed
)

func getHashSeed() maphash.Seed {
	hashSeedOnce.Do(func() {
		hashSeed = maphash.MakeSeed()
	})
	return hashSeed
}

// parseIPv4 converts an IPv4 dotted-quad literal to its 4-byte binary form.
// Hostnames, IPv6 literals, and anything else that isn't a clean IPv4
// literal fail with ErrInvalid — this core never resolves hostnames.
func parseIPv4(ip string) ([4]byte, error) {
	var out [4]byte
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return out, fmt.Errorf("conntable: %q is not an IP literal: %w", ip, ErrInvalid)
	}
	v4 := parsed.To4()
	if v4 == nil {
		return out, fmt.Errorf("conntable: %q is not an IPv4 literal: %w", ip, ErrInvalid)
	}
	copy(out[:], v4)
	return out, nil
}

// hashKey computes the 32-bit bucket key for (ip, port), hashing the binary
// address together with the port and the process-lifetime seed. Hash
// collisions between distinct endpoints are expected and are resolved by
// content equality when walking a bucket's chain.
func hashKey(ip string, port uint16) (uint32, error) {
	addr, err := parseIPv4(ip)
	if err != nil {
		return 0, err
	}
	var h maphash.Hash
	h.SetSeed(getHashSeed())
	h.Write(addr[:])
	h.WriteByte(byte(port))
	h.WriteByte(byte(port >> 8))
	return uint32(h.Sum64()), nil
}
