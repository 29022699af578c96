package consensus

import (
	"testing"
	"time"

	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/gossip"
	"github.com/KazeONGUENE/rope/src/peers"
)

func testPeerSet(n int) (*peers.PeerSet, []peers.NodeID) {
	list := make([]*peers.Peer, n)
	for i := 0; i < n; i++ {
		list[i] = peers.NewPeer([]byte{byte(i + 1)}, "", "")
	}
	ps := peers.NewPeerSet(list)
	ids := make([]peers.NodeID, n)
	for i, p := range ps.Peers {
		ids[i] = p.ID()
	}
	return ps, ids
}

func TestAnchorPromotionRespectsInterval(t *testing.T) {
	ps, ids := testPeerSet(4)
	h := gossip.NewHistory(ps, 1000)
	eng := NewEngine(h, ps, 10*time.Millisecond, 2)

	e0 := gossip.NewEvent(ids[0], gossip.EventID{}, gossip.EventID{}, 0, nil, 1)
	if err := h.Insert(e0); err != nil {
		t.Fatalf("insert: %v", err)
	}
	cand := entry.ID{0x01}
	eng.RecordEntryEvent(cand, e0.ID())

	base := time.Unix(0, 0)
	_, promoted, err := eng.TryPromote(base, []entry.ID{cand})
	if err != nil {
		t.Fatalf("TryPromote: %v", err)
	}
	if !promoted {
		t.Fatalf("expected first anchor to promote unconditionally on time check")
	}

	cand2 := entry.ID{0x02}
	e1 := gossip.NewEvent(ids[0], e0.ID(), gossip.EventID{}, 1, nil, 2)
	if err := h.Insert(e1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	eng.RecordEntryEvent(cand2, e1.ID())

	_, promoted, err = eng.TryPromote(base.Add(1*time.Millisecond), []entry.ID{cand2})
	if err != nil {
		t.Fatalf("TryPromote: %v", err)
	}
	if promoted {
		t.Fatalf("expected promotion to be withheld before the anchor interval elapses")
	}
}

func TestRequiresAttestation(t *testing.T) {
	if !RequiresAttestation(OpErasureQuorum, 100) {
		t.Fatalf("erasure quorum must always require attestation")
	}
	if !RequiresAttestation(OpValidatorSetChange, 100) {
		t.Fatalf("validator-set change must always require attestation")
	}
	if RequiresAttestation(OpAnchorPromotion, 100) {
		t.Fatalf("large networks should not require attestation for anchor promotion")
	}
	if !RequiresAttestation(OpAnchorPromotion, 3) {
		t.Fatalf("thin networks should require attestation for anchor promotion")
	}
}
