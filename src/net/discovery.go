package net

import (
	"math/bits"
	"sort"
	"sync"

	"github.com/KazeONGUENE/rope/src/peers"
)

// xorDistance is the Kademlia-style distance metric between two node ids:
// bitwise XOR, compared as a big-endian integer. No pack example ships a
// real Kademlia/libp2p dependency to wire this concern to (see DESIGN.md),
// so it stands on math/bits alone.
func xorDistance(a, b peers.NodeID) [peers.NodeIDSize]byte {
	var out [peers.NodeIDSize]byte
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// less reports whether distance x is strictly smaller than y, comparing
// byte-by-byte from the most significant end.
func lessDistance(x, y [peers.NodeIDSize]byte) bool {
	for i := range x {
		if x[i] != y[i] {
			return x[i] < y[i]
		}
	}
	return false
}

// leadingZeroBits returns the length of the common prefix, in bits, between
// two node ids -- the "bucket index" a structured overlay would use to place
// a contact, per spec.md §4.8's "structured overlay" phrasing.
func leadingZeroBits(a, b peers.NodeID) int {
	total := 0
	for i := range a {
		x := a[i] ^ b[i]
		if x == 0 {
			total += 8
			continue
		}
		total += bits.LeadingZeros8(x)
		return total
	}
	return total
}

// closestPeers returns up to k ids from candidates sorted by ascending XOR
// distance to target, the lookup primitive discovery uses to decide which
// known peers are worth asking about an id near target.
func closestPeers(target peers.NodeID, candidates []peers.NodeID, k int) []peers.NodeID {
	sorted := make([]peers.NodeID, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return lessDistance(xorDistance(target, sorted[i]), xorDistance(target, sorted[j]))
	})
	if k >= 0 && k < len(sorted) {
		sorted = sorted[:k]
	}
	return sorted
}

// discoveryTable is the node-local peer bookkeeping SPEC_FULL scopes
// discovery to: a bootstrap address list plus every id this node has ever
// resolved to a reachable address, bucketed only for the closestPeers
// lookup above -- there is no DHT storage operation, since the graph is the
// system's actual data structure (spec.md §4.8 note).
type discoveryTable struct {
	self      peers.NodeID
	bootstrap []string

	mu    sync.RWMutex
	known map[peers.NodeID]string
}

func newDiscoveryTable(self peers.NodeID, bootstrap []string) *discoveryTable {
	return &discoveryTable{
		self:      self,
		bootstrap: append([]string(nil), bootstrap...),
		known:     make(map[peers.NodeID]string),
	}
}

// Bootstrap returns the statically configured addresses to dial on startup.
func (t *discoveryTable) Bootstrap() []string {
	return append([]string(nil), t.bootstrap...)
}

// Observe records addr as the last-known reachable address for id.
func (t *discoveryTable) Observe(id peers.NodeID, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known[id] = addr
}

// Forget removes id from the table, e.g. once its address is stale enough
// that reconnect attempts have given up.
func (t *discoveryTable) Forget(id peers.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.known, id)
}

// Address returns the last-known address for id, if any.
func (t *discoveryTable) Address(id peers.NodeID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	addr, ok := t.known[id]
	return addr, ok
}

// Closest returns up to k known ids ordered by ascending XOR distance to
// target, excluding this node itself.
func (t *discoveryTable) Closest(target peers.NodeID, k int) []peers.NodeID {
	t.mu.RLock()
	candidates := make([]peers.NodeID, 0, len(t.known))
	for id := range t.known {
		if id != t.self {
			candidates = append(candidates, id)
		}
	}
	t.mu.RUnlock()
	return closestPeers(target, candidates, k)
}
