package oes

import (
	"testing"

	"github.com/KazeONGUENE/rope/src/peers"
)

func TestPendingCommitmentIsDeterministicAcrossReplicas(t *testing.T) {
	genome, err := RandomGenome()
	if err != nil {
		t.Fatalf("random genome: %v", err)
	}

	s1, err := newStateFromGenome(genome, 5, 100, 10)
	if err != nil {
		t.Fatalf("new state 1: %v", err)
	}
	s2, err := newStateFromGenome(genome, 5, 100, 10)
	if err != nil {
		t.Fatalf("new state 2: %v", err)
	}

	p1 := s1.PendingCommitment()
	p2 := s2.PendingCommitment()

	if p1.Commitment != p2.Commitment {
		t.Fatalf("two replicas seeded with the same genome produced different commitments")
	}
	if p1.Genome != p2.Genome {
		t.Fatalf("two replicas seeded with the same genome produced different next genomes")
	}
	if p1.Number != 6 {
		t.Fatalf("expected next generation number 6, got %d", p1.Number)
	}
}

func TestPendingCommitmentDoesNotMutateLiveDynamics(t *testing.T) {
	s, err := NewState(100, 10)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	first := s.PendingCommitment()
	second := s.PendingCommitment()

	if first.Commitment != second.Commitment {
		t.Fatalf("two PendingCommitment calls without an intervening Adopt diverged: %x != %x", first.Commitment, second.Commitment)
	}
	if first.Genome != second.Genome {
		t.Fatalf("two PendingCommitment calls without an intervening Adopt produced different genomes")
	}
}

func TestOnAnchorFiresAtInterval(t *testing.T) {
	s, err := NewState(3, 10)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	if s.OnAnchor() || s.OnAnchor() {
		t.Fatalf("expected no evolution before the interval elapses")
	}
	if !s.OnAnchor() {
		t.Fatalf("expected evolution due on the 3rd anchor")
	}
}

func TestAdoptInstallsPendingGeneration(t *testing.T) {
	s, err := NewState(100, 10)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	before := s.CurrentEpoch()
	pending := s.PendingCommitment()
	if err := s.Adopt(pending); err != nil {
		t.Fatalf("adopt: %v", err)
	}
	if s.CurrentEpoch() != before+1 {
		t.Fatalf("expected epoch to advance to %d, got %d", before+1, s.CurrentEpoch())
	}
	if s.KeyPair() == nil {
		t.Fatalf("expected adopted generation to carry a derived keypair")
	}
}

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

func TestAgreementReachesQuorum(t *testing.T) {
	ps, ids := testPeerSet(6) // SuperMajority(6) = 5
	agreement := NewAgreement(ps, 1)

	var commitment [32]byte
	commitment[0] = 0xAB

	quorum := ps.SuperMajority()
	for i := 0; i < quorum; i++ {
		reached := agreement.RecordCommitment(ids[i], commitment)
		if i < quorum-1 && reached {
			t.Fatalf("quorum reached too early at validator %d", i)
		}
	}

	val, decided := agreement.Decided()
	if !decided {
		t.Fatalf("expected quorum to be reached with matching commitments")
	}
	if val != commitment {
		t.Fatalf("adopted commitment does not match the majority value")
	}
}

func TestAgreementIgnoresMismatchedCommitments(t *testing.T) {
	ps, ids := testPeerSet(6)
	agreement := NewAgreement(ps, 1)

	var a, b [32]byte
	a[0], b[0] = 0x01, 0x02

	agreement.RecordCommitment(ids[0], a)
	agreement.RecordCommitment(ids[1], b)
	agreement.RecordCommitment(ids[2], a)

	if _, decided := agreement.Decided(); decided {
		t.Fatalf("did not expect quorum with a split vote below threshold")
	}
}
