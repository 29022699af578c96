package gossip

import (
	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/peers"
)

// Vote is one validator's virtual vote on an entry (spec.md §4.3): whether
// it considers the entry known, its ordering value, and the round at which
// it first learned of it.
type Vote struct {
	Valid    bool
	Ordering int
	Round    int
	Accept   bool
}

// abstain is the vote returned when first_learned is undefined.
func abstain() Vote {
	return Vote{Valid: false, Ordering: 0, Round: 0, Accept: false}
}

// VirtualVote computes validator node's virtual vote on entry id, per
// spec.md §4.3: abstain if node never learned of id, otherwise accept with
// the entry's global reference count as ordering and node's first-learned
// round.
func (h *History) VirtualVote(node peers.NodeID, id entry.ID) Vote {
	ev, ok := h.FirstLearned(node, id)
	if !ok {
		return abstain()
	}
	round, err := h.Round(ev)
	if err != nil {
		return abstain()
	}
	return Vote{
		Valid:    true,
		Ordering: h.ReferenceCount(id),
		Round:    round,
		Accept:   true,
	}
}

// ConsensusVote tallies every validator's virtual vote on entry id and
// returns the ordering value held by a strict supermajority, if any
// (spec.md §4.3 "Consensus vote").
func (h *History) ConsensusVote(id entry.ID) (ordering int, decided bool) {
	tally := make(map[int]int)
	for _, p := range h.peerSet.IDs() {
		v := h.VirtualVote(p, id)
		if !v.Valid || !v.Accept {
			continue
		}
		tally[v.Ordering]++
	}

	threshold := h.peerSet.SuperMajority()
	for value, count := range tally {
		if count >= threshold {
			return value, true
		}
	}
	return 0, false
}

// TieBreak returns the lexicographically smaller of a and b — the
// tie-break rule used both when two entries compete for the same anchor
// slot (spec.md §4.4) and when the gossip layer must pick a winner between
// competing candidates (spec.md §4.3).
func TieBreak(a, b entry.ID) entry.ID {
	if a.Less(b) {
		return a
	}
	return b
}
