package erasure

import (
	"testing"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/graph"
	"github.com/KazeONGUENE/rope/src/peers"
)

type testValidator struct {
	kp   *crypto.HybridKeyPair
	pub  []byte
	peer *peers.Peer
}

func newTestValidators(t *testing.T, n int) ([]*testValidator, *peers.PeerSet) {
	t.Helper()
	out := make([]*testValidator, n)
	list := make([]*peers.Peer, n)
	for i := 0; i < n; i++ {
		kp, err := crypto.HybridKeyPairFromSeed([]byte{byte(i + 1)})
		if err != nil {
			t.Fatalf("keypair %d: %v", i, err)
		}
		pub, err := crypto.MarshalHybridPublicKey(&kp.Public)
		if err != nil {
			t.Fatalf("marshal pubkey %d: %v", i, err)
		}
		peer := peers.NewPeer(pub, "", "")
		out[i] = &testValidator{kp: kp, pub: pub, peer: peer}
		list[i] = peer
	}
	return out, peers.NewPeerSet(list)
}

func newTestGraph() *graph.Graph {
	return graph.New(graph.NewInMemBackend(), func(creator []byte) (*crypto.HybridPublicKey, error) {
		return crypto.UnmarshalHybridPublicKey(creator)
	})
}

func admitTarget(t *testing.T, g *graph.Graph, owner *testValidator, class entry.MutabilityClass) *entry.Entry {
	t.Helper()
	e, err := entry.NewBuilder().
		Content([]byte("erasable content")).
		Clock(entry.LogicalClock{Creator: owner.peer.ID(), Counter: 1}).
		MutabilityClass(class).
		Build(owner.kp)
	if err != nil {
		t.Fatalf("build target: %v", err)
	}
	if err := g.Admit(e); err != nil {
		t.Fatalf("admit target: %v", err)
	}
	return e
}

func TestErasureRequiresQuorumBeforeAdmit(t *testing.T) {
	validators, ps := newTestValidators(t, 6) // SuperMajority(6) = 5
	g := newTestGraph()
	target := admitTarget(t, g, validators[0], entry.OwnerErasable)

	p := NewProcessor(g, nil, nil)
	if err := p.Authorize(target, entry.ReasonOwnerInitiated, validators[0].pub); err != nil {
		t.Fatalf("authorize: %v", err)
	}

	req := NewRequest(target.ID(), entry.ReasonOwnerInitiated, validators[0].pub, 1000, nil, ps)

	quorum := ps.SuperMajority()
	var reachedAt = -1
	for i, v := range validators {
		sig, err := crypto.Sign(v.kp, req.signingBytes())
		if err != nil {
			t.Fatalf("sign co-sig %d: %v", i, err)
		}
		reached, err := req.CoSign(v.pub, sig)
		if err != nil {
			t.Fatalf("co-sign %d: %v", i, err)
		}
		if reached {
			reachedAt = i
			break
		}
	}
	if reachedAt != quorum-1 {
		t.Fatalf("expected quorum at validator index %d, reached at %d", quorum-1, reachedAt)
	}

	kp := validators[0].kp
	id, err := p.Admit(req, kp)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	tomb, err := g.IsTombstoned(target.ID())
	if err != nil {
		t.Fatalf("is tombstoned: %v", err)
	}
	if !tomb {
		t.Fatalf("expected target to be tombstoned after quorum admission")
	}

	got, ok, err := g.Get(target.ID())
	if err != nil || !ok {
		t.Fatalf("get target: ok=%v err=%v", ok, err)
	}
	if !entry.IsTombstoned(got.Content) {
		t.Fatalf("expected target content to be replaced with a tombstone marker")
	}

	linked, ok, err := g.ErasureRecordFor(target.ID())
	if err != nil || !ok || linked != id {
		t.Fatalf("expected ErasureRecordFor to return %v, got %v ok=%v err=%v", id, linked, ok, err)
	}
}

func TestErasureAdmitFailsBeforeQuorum(t *testing.T) {
	validators, ps := newTestValidators(t, 6)
	g := newTestGraph()
	target := admitTarget(t, g, validators[0], entry.OwnerErasable)

	req := NewRequest(target.ID(), entry.ReasonOwnerInitiated, validators[0].pub, 1000, nil, ps)
	sig, err := crypto.Sign(validators[0].kp, req.signingBytes())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := req.CoSign(validators[0].pub, sig); err != nil {
		t.Fatalf("co-sign: %v", err)
	}

	p := NewProcessor(g, nil, nil)
	_, err = p.Admit(req, validators[0].kp)
	if !common.Is(err, common.QuorumNotMet) {
		t.Fatalf("expected QuorumNotMet, got %v", err)
	}
}

func TestAuthorizeRejectsWrongMutabilityClass(t *testing.T) {
	validators, _ := newTestValidators(t, 3)
	g := newTestGraph()
	target := admitTarget(t, g, validators[0], entry.Immutable)

	p := NewProcessor(g, nil, nil)
	err := p.Authorize(target, entry.ReasonOwnerInitiated, validators[0].pub)
	if !common.Is(err, common.Unauthorized) {
		t.Fatalf("expected Unauthorized for an immutable target, got %v", err)
	}
}

type denyAll struct{}

func (denyAll) HasRole(authorizerPubKey []byte, role Role, target entry.ID) bool { return false }

func TestAuthorizeConsultsExternalAuthorizer(t *testing.T) {
	validators, _ := newTestValidators(t, 3)
	g := newTestGraph()
	target := admitTarget(t, g, validators[0], entry.OwnerErasable)

	p := NewProcessor(g, denyAll{}, nil)
	err := p.Authorize(target, entry.ReasonOwnerInitiated, validators[0].pub)
	if !common.Is(err, common.Unauthorized) {
		t.Fatalf("expected Unauthorized when the policy collaborator denies the role, got %v", err)
	}
}

func coSignAll(t *testing.T, req *Request, validators []*testValidator) {
	t.Helper()
	for _, v := range validators {
		sig, err := crypto.Sign(v.kp, req.signingBytes())
		if err != nil {
			t.Fatalf("sign co-sig: %v", err)
		}
		if _, err := req.CoSign(v.pub, sig); err != nil {
			t.Fatalf("co-sign: %v", err)
		}
	}
}

func TestErasureReapplicationIsNoOp(t *testing.T) {
	validators, ps := newTestValidators(t, 3)
	g := newTestGraph()
	target := admitTarget(t, g, validators[0], entry.OwnerErasable)

	p := NewProcessor(g, nil, nil)
	req := NewRequest(target.ID(), entry.ReasonOwnerInitiated, validators[0].pub, 1000, nil, ps)
	coSignAll(t, req, validators)

	first, err := p.Admit(req, validators[0].kp)
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}

	req2 := NewRequest(target.ID(), entry.ReasonOwnerInitiated, validators[0].pub, 1000, nil, ps)
	coSignAll(t, req2, validators)

	second, err := p.Admit(req2, validators[0].kp)
	if err != nil {
		t.Fatalf("expected re-application to be a no-op, got error: %v", err)
	}
	if second != first {
		t.Fatalf("expected re-application to return the existing erasure record id %v, got %v", first, second)
	}
}

func TestErasureRejectsReseedOfTombstonedID(t *testing.T) {
	validators, ps := newTestValidators(t, 3)
	g := newTestGraph()
	target := admitTarget(t, g, validators[0], entry.OwnerErasable)

	p := NewProcessor(g, nil, nil)
	req := NewRequest(target.ID(), entry.ReasonOwnerInitiated, validators[0].pub, 1000, nil, ps)
	coSignAll(t, req, validators)

	if _, err := p.Admit(req, validators[0].kp); err != nil {
		t.Fatalf("admit: %v", err)
	}

	if err := g.Admit(target); !common.Is(err, common.Erased) {
		t.Fatalf("expected re-seeding a tombstoned id to return Erased, got %v", err)
	}
}
