// Package peers holds the validator set: identity derivation, the PeerSet
// type, and the supermajority/trust arithmetic the gossip and consensus
// packages depend on.
package peers

import (
	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
)

// NodeIDSize is the length in bytes of a validator identity: the
// domain-separated hash of its hybrid public key (spec.md §4.8).
const NodeIDSize = crypto.HashSize

// NodeID identifies a validator by the hash of its hybrid public key.
type NodeID [NodeIDSize]byte

// String returns the 0X-prefixed hex representation of the id.
func (id NodeID) String() string {
	return common.EncodeToString(id[:])
}

// NodeIDFromHybridPublicKey derives a NodeID from a marshalled hybrid
// public key, the way the network layer names every peer (spec.md §4.8).
func NodeIDFromHybridPublicKey(pubKeyBytes []byte) NodeID {
	var id NodeID
	copy(id[:], crypto.HashBytes(crypto.DomainPeerSet, pubKeyBytes))
	return id
}

// Peer is one validator: its identity, public key, and last-known network
// address. The NodeID is derived from PubKey once, at construction.
type Peer struct {
	id        NodeID
	NetAddr   string
	PubKey    []byte // marshalled hybrid public key
	Moniker   string
}

// NewPeer derives a Peer's NodeID from its marshalled hybrid public key.
func NewPeer(pubKey []byte, netAddr, moniker string) *Peer {
	return &Peer{
		id:      NodeIDFromHybridPublicKey(pubKey),
		NetAddr: netAddr,
		PubKey:  pubKey,
		Moniker: moniker,
	}
}

// ID returns the peer's derived NodeID.
func (p *Peer) ID() NodeID {
	return p.id
}

// PubKeyHex returns the 0X-prefixed hex encoding of the peer's public key,
// used as the map key in PeerSet.ByPubKey since []byte is not comparable.
func (p *Peer) PubKeyHex() string {
	return common.EncodeToString(p.PubKey)
}

// ExcludePeer removes the peer with the given NetAddr from a slice, mirroring
// babble's peers.ExcludePeer.
func ExcludePeer(all []*Peer, netAddr string) (int, []*Peer) {
	index := -1
	rest := make([]*Peer, 0, len(all))
	for i, p := range all {
		if p.NetAddr != netAddr {
			rest = append(rest, p)
		} else {
			index = i
		}
	}
	return index, rest
}
