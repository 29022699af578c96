// Package gossip implements the per-validator gossip event DAG and the
// virtual-voting relations defined over it: can-see, first-learned,
// strongly-sees, round assignment, and the virtual/consensus vote
// (spec.md §4.3).
package gossip

import (
	"encoding/binary"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/peers"
)

// domainGossipEvent domain-separates gossip event hashing from entry ids,
// shard hashes, and OES commitments (spec.md §6 "domain-separated per
// purpose").
const domainGossipEvent = "gossip-event"

// EventIDSize is the length in bytes of a gossip event id.
const EventIDSize = crypto.HashSize

// EventID identifies a gossip event by the hash of its content.
type EventID [EventIDSize]byte

// String returns the 0X-prefixed hex representation of the id.
func (id EventID) String() string {
	return common.EncodeToString(id[:])
}

// IsZero reports whether id is the sentinel "no parent" value.
func (id EventID) IsZero() bool {
	return id == EventID{}
}

// Coordinate names one validator's event by its self-parent chain depth, the
// unit strongly-sees compares (babble's EventCoordinates, generalized from
// event hashes to gossip event ids).
type Coordinate struct {
	ID    EventID
	Index uint64
}

// GossipEvent is the atomic unit a single validator emits: a reference to
// its own previous event (self-parent) and one event learned from a peer
// (other-parent), plus the set of entry ids it is announcing (spec.md §3
// "Gossip event").
type GossipEvent struct {
	id EventID

	Creator     peers.NodeID
	SelfParent  EventID // zero for a validator's first event
	OtherParent EventID // zero if this event announces nothing learned from a peer
	Index       uint64  // depth in the creator's self-parent chain, 0-based
	Entries     []entry.ID
	Timestamp   int64

	round            int
	witness          bool
	lastAncestors    map[peers.NodeID]Coordinate
	firstDescendants map[peers.NodeID]Coordinate
}

// ID returns the event's derived id.
func (e *GossipEvent) ID() EventID {
	return e.id
}

// Round returns the round assigned to the event at insertion time.
func (e *GossipEvent) Round() int {
	return e.round
}

// IsWitness reports whether the event is its creator's first event of its
// round (spec.md §4.3 "A witness of round r is a validator's first event
// with that round").
func (e *GossipEvent) IsWitness() bool {
	return e.witness
}

func computeEventID(creator peers.NodeID, selfParent, otherParent EventID, index uint64, entries []entry.ID, timestamp int64) EventID {
	var idxBuf, tsBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], index)
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp))

	entryBuf := make([]byte, 0, len(entries)*entry.IDSize)
	for _, eid := range entries {
		entryBuf = append(entryBuf, eid[:]...)
	}

	h := crypto.Hash(domainGossipEvent, creator[:], selfParent[:], otherParent[:], idxBuf[:], entryBuf, tsBuf[:])
	var id EventID
	copy(id[:], h[:])
	return id
}

// NewEvent constructs a GossipEvent and derives its id. index must be 0 for
// a validator's first event and one greater than the self-parent's index
// otherwise; History.Insert checks this.
func NewEvent(creator peers.NodeID, selfParent, otherParent EventID, index uint64, entries []entry.ID, timestamp int64) *GossipEvent {
	e := &GossipEvent{
		Creator:     creator,
		SelfParent:  selfParent,
		OtherParent: otherParent,
		Index:       index,
		Entries:     append([]entry.ID{}, entries...),
		Timestamp:   timestamp,
	}
	e.id = computeEventID(creator, selfParent, otherParent, index, entries, timestamp)
	return e
}
