package gossip

import (
	"testing"

	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/peers"
)

func testPeerSet(n int) (*peers.PeerSet, []peers.NodeID) {
	list := make([]*peers.Peer, n)
	ids := make([]peers.NodeID, n)
	for i := 0; i < n; i++ {
		pub := []byte{byte(i + 1), byte(i + 1), byte(i + 1)}
		p := peers.NewPeer(pub, "", "")
		list[i] = p
		ids[i] = p.ID()
	}
	ps := peers.NewPeerSet(list)
	for i, p := range list {
		ids[i] = p.ID()
	}
	return ps, ids
}

func TestHistoryCanSeeSelfParentChain(t *testing.T) {
	ps, ids := testPeerSet(4)
	h := NewHistory(ps, 100)

	e0 := NewEvent(ids[0], EventID{}, EventID{}, 0, nil, 1)
	if err := h.Insert(e0); err != nil {
		t.Fatalf("insert e0: %v", err)
	}

	e1 := NewEvent(ids[0], e0.ID(), EventID{}, 1, nil, 2)
	if err := h.Insert(e1); err != nil {
		t.Fatalf("insert e1: %v", err)
	}

	ok, err := h.CanSee(e1.ID(), e0.ID())
	if err != nil || !ok {
		t.Fatalf("expected e1 to see e0, got ok=%v err=%v", ok, err)
	}
	ok, err = h.CanSee(e0.ID(), e1.ID())
	if err != nil || ok {
		t.Fatalf("expected e0 not to see e1, got ok=%v err=%v", ok, err)
	}
}

func TestHistoryMissingParentRejected(t *testing.T) {
	ps, ids := testPeerSet(4)
	h := NewHistory(ps, 100)

	var bogus EventID
	bogus[0] = 0xFF
	e := NewEvent(ids[0], bogus, EventID{}, 1, nil, 1)
	if err := h.Insert(e); err == nil {
		t.Fatalf("expected error inserting event with unknown self-parent")
	}
}

// buildFullMesh has every one of n validators emit one event each round,
// gossiping with the next validator in a ring, for numRounds rounds. It
// returns the History and, per validator, the id of their last event.
func buildFullMesh(t *testing.T, n, numRounds int) (*History, *peers.PeerSet, []peers.NodeID, [][]EventID) {
	ps, ids := testPeerSet(n)
	h := NewHistory(ps, 10000)

	heads := make([]EventID, n)
	allEvents := make([][]EventID, n)
	ts := int64(0)

	// round 0: everyone's first event
	for i := 0; i < n; i++ {
		e := NewEvent(ids[i], EventID{}, EventID{}, 0, nil, ts)
		ts++
		if err := h.Insert(e); err != nil {
			t.Fatalf("insert round0 validator %d: %v", i, err)
		}
		heads[i] = e.ID()
		allEvents[i] = append(allEvents[i], e.ID())
	}

	for r := 1; r < numRounds; r++ {
		newHeads := make([]EventID, n)
		for i := 0; i < n; i++ {
			other := heads[(i+1)%n]
			idx, _ := h.Get(heads[i])
			e := NewEvent(ids[i], heads[i], other, idx.Index+1, nil, ts)
			ts++
			if err := h.Insert(e); err != nil {
				t.Fatalf("insert round%d validator %d: %v", r, i, err)
			}
			newHeads[i] = e.ID()
			allEvents[i] = append(allEvents[i], e.ID())
		}
		heads = newHeads
	}

	return h, ps, ids, allEvents
}

func TestHistoryRoundAdvancesWithSupermajority(t *testing.T) {
	h, _, _, events := buildFullMesh(t, 4, 6)

	maxRound := 0
	for _, validatorEvents := range events {
		for _, id := range validatorEvents {
			r, err := h.Round(id)
			if err != nil {
				t.Fatalf("round: %v", err)
			}
			if r > maxRound {
				maxRound = r
			}
		}
	}

	if maxRound == 0 {
		t.Fatalf("expected rounds to advance past 0 after enough gossip, got max round %d", maxRound)
	}
}

func TestFirstLearnedAndConsensusVote(t *testing.T) {
	ps, ids := testPeerSet(4)
	h := NewHistory(ps, 1000)

	target := entry.ID{0xAB}

	heads := make([]EventID, 4)
	for i := 0; i < 4; i++ {
		var entries []entry.ID
		if i < 3 {
			entries = []entry.ID{target}
		}
		e := NewEvent(ids[i], EventID{}, EventID{}, 0, entries, int64(i))
		if err := h.Insert(e); err != nil {
			t.Fatalf("insert: %v", err)
		}
		heads[i] = e.ID()
	}

	for i := 0; i < 3; i++ {
		ev, ok := h.FirstLearned(ids[i], target)
		if !ok || ev != heads[i] {
			t.Fatalf("validator %d: expected first-learned %s, got %s ok=%v", i, heads[i], ev, ok)
		}
	}
	if _, ok := h.FirstLearned(ids[3], target); ok {
		t.Fatalf("validator 3 never announced target, expected FirstLearned to report false")
	}

	// 3-of-4 valid accept votes meets the supermajority threshold (3 for n=4).
	_, decided := h.ConsensusVote(target)
	if !decided {
		t.Fatalf("expected consensus vote to be decided with 3/4 validators voting")
	}
}

func TestTieBreakPicksSmallerID(t *testing.T) {
	a := entry.ID{0x01}
	b := entry.ID{0x02}
	if TieBreak(a, b) != a {
		t.Fatalf("expected TieBreak to pick the lexicographically smaller id")
	}
	if TieBreak(b, a) != a {
		t.Fatalf("expected TieBreak to be symmetric")
	}
}
