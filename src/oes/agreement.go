package oes

import (
	"sync"

	"github.com/KazeONGUENE/rope/src/peers"
)

// Agreement tracks the per-generation commitment broadcasts of every
// validator and decides when a byzantine quorum of matching commitments has
// been observed (spec.md §4.5 "Network agreement"). One Agreement is scoped
// to a single pending generation number at a time; src/node creates a fresh
// one each time OnAnchor fires.
type Agreement struct {
	mu sync.Mutex

	peerSet    *peers.PeerSet
	generation uint64

	byValidator map[peers.NodeID][32]byte
	tally       map[[32]byte]int

	adopted    bool
	adoptedVal [32]byte

	stalled bool
}

// NewAgreement starts tracking commitments for a given generation number
// over peerSet.
func NewAgreement(peerSet *peers.PeerSet, generation uint64) *Agreement {
	return &Agreement{
		peerSet:     peerSet,
		generation:  generation,
		byValidator: make(map[peers.NodeID][32]byte),
		tally:       make(map[[32]byte]int),
	}
}

// Generation returns the generation number this Agreement tracks.
func (a *Agreement) Generation() uint64 {
	return a.generation
}

// RecordCommitment records validator's broadcast commitment for this
// generation. It is idempotent per validator: a later commitment from the
// same validator for the same generation replaces its earlier one (network
// retransmission tolerance), and the tally is recomputed accordingly.
// Returns true the first time a byzantine quorum is reached for some value.
func (a *Agreement) RecordCommitment(validator peers.NodeID, commitment [32]byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.adopted {
		return false
	}

	if prev, ok := a.byValidator[validator]; ok {
		if prev == commitment {
			return false
		}
		a.tally[prev]--
	}
	a.byValidator[validator] = commitment
	a.tally[commitment]++

	quorum := a.peerSet.SuperMajority()
	if a.tally[commitment] >= quorum {
		a.adopted = true
		a.adoptedVal = commitment
		return true
	}
	return false
}

// Decided reports whether quorum has been reached, and on which value.
func (a *Agreement) Decided() ([32]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.adoptedVal, a.adopted
}

// MarkStalled records that the bounded agreement window elapsed without
// quorum (spec.md §4.5 "Failure semantics"): the network retains the
// previous generation and this is an operational alarm, not a protocol
// abort.
func (a *Agreement) MarkStalled() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stalled = true
}

// Stalled reports whether MarkStalled was called.
func (a *Agreement) Stalled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stalled
}

// ReceivedCount returns how many distinct validators have broadcast a
// commitment for this generation so far, for a caller deciding whether the
// bounded window has enough participation left to still reach quorum.
func (a *Agreement) ReceivedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byValidator)
}
