package peers

import (
	"sort"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
)

// PeerSet is the validator set consensus and gossip operate over. It is
// immutable once constructed; validator-set changes produce a new PeerSet
// (spec.md §4.4 names validator-set changes as one of the three operations
// that require explicit attestation).
type PeerSet struct {
	Peers    []*Peer
	ByPubKey map[string]*Peer
	ByID     map[NodeID]*Peer

	hash          []byte
	superMajority *int
	trustCount    *int
}

// NewPeerSet builds a PeerSet from a list of peers, sorted by id so that
// Hash() is independent of construction order.
func NewPeerSet(list []*Peer) *PeerSet {
	sorted := make([]*Peer, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].ID(), sorted[j].ID()
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})

	ps := &PeerSet{
		ByPubKey: make(map[string]*Peer, len(sorted)),
		ByID:     make(map[NodeID]*Peer, len(sorted)),
		Peers:    sorted,
	}
	for _, p := range sorted {
		ps.ByPubKey[p.PubKeyHex()] = p
		ps.ByID[p.ID()] = p
	}
	return ps
}

// WithNewPeer returns a new PeerSet including peer, unless already present.
func (ps *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	if _, ok := ps.ByID[peer.ID()]; ok {
		return ps
	}
	return NewPeerSet(append(append([]*Peer{}, ps.Peers...), peer))
}

// WithRemovedPeer returns a new PeerSet excluding the peer with the given id.
func (ps *PeerSet) WithRemovedPeer(id NodeID) *PeerSet {
	rest := make([]*Peer, 0, len(ps.Peers))
	for _, p := range ps.Peers {
		if p.ID() != id {
			rest = append(rest, p)
		}
	}
	return NewPeerSet(rest)
}

// Len returns the number of validators in the set.
func (ps *PeerSet) Len() int {
	return len(ps.Peers)
}

// IDs returns the set's NodeIDs.
func (ps *PeerSet) IDs() []NodeID {
	out := make([]NodeID, len(ps.Peers))
	for i, p := range ps.Peers {
		out[i] = p.ID()
	}
	return out
}

// Hash uniquely identifies a PeerSet by chaining the domain-separated hash
// of each validator's public key, in sorted order so two PeerSets with the
// same members always hash equal (babble's peers.PeerSet.Hash, generalized
// from SHA256 pair-chaining to the core's blake3 Hash).
func (ps *PeerSet) Hash() []byte {
	if len(ps.hash) != 0 {
		return ps.hash
	}
	acc := make([]byte, 0)
	for _, p := range ps.Peers {
		acc = crypto.HashBytes(crypto.DomainPeerSet, acc, p.PubKey)
	}
	ps.hash = acc
	return ps.hash
}

// Hex is the 0X-prefixed hex form of Hash.
func (ps *PeerSet) Hex() string {
	return common.EncodeToString(ps.Hash())
}

// SuperMajority is the smallest integer strictly greater than 2/3 of Len(),
// the threshold used throughout strongly-sees, anchor finality, OES
// commitment quorum, and erasure co-signing (spec.md §4.3, §4.5, §4.7).
func (ps *PeerSet) SuperMajority() int {
	if ps.superMajority == nil {
		v := 2*ps.Len()/3 + 1
		ps.superMajority = &v
	}
	return *ps.superMajority
}

// TrustCount is ceil(Len()/3), babble's fast-sync/suspend threshold. It is
// not the byzantine quorum used by OES commitment agreement or erasure
// co-signing; those use SuperMajority.
func (ps *PeerSet) TrustCount() int {
	if ps.trustCount == nil {
		v := 0
		if ps.Len() > 1 {
			v = (ps.Len() + 2) / 3
		}
		ps.trustCount = &v
	}
	return *ps.trustCount
}
