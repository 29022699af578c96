package erasure

import (
	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/graph"
	"github.com/KazeONGUENE/rope/src/peers"
)

// EpochSource lets Processor mint erasure-record entries against the
// network's live OES generation instead of always epoch 0, the same
// collaborator graph.Graph itself takes (spec.md §4.5, §4.7).
type EpochSource interface {
	CurrentEpoch() uint64
}

// Processor applies erasure records to a Graph: policy checks before a
// Request is even opened, and, once quorum is reached, admission as an
// ordinary entry (spec.md §4.7 step 3) followed by tombstoning the target
// and destroying its parity companion (step 4).
type Processor struct {
	graph      *graph.Graph
	authorizer Authorizer
	epochs     EpochSource
}

// NewProcessor creates a Processor over g. authorizer may be nil, in which
// case only the mutability-class check runs (used in tests and single-node
// setups without an external policy collaborator wired in). epochs may also
// be nil, in which case erasure-record entries are always minted at epoch 0
// (used in tests that never advance OES).
func NewProcessor(g *graph.Graph, authorizer Authorizer, epochs EpochSource) *Processor {
	return &Processor{graph: g, authorizer: authorizer, epochs: epochs}
}

func (p *Processor) currentEpoch() uint64 {
	if p.epochs == nil {
		return 0
	}
	return p.epochs.CurrentEpoch()
}

// Authorize checks policy before a Request is built: target's mutability
// class must permit reason, and the requester must hold the role entitled
// to invoke it (spec.md §4.7 step 2).
func (p *Processor) Authorize(target *entry.Entry, reason entry.ErasureReason, authorizerPubKey []byte) error {
	if !permitsReason(target.MutabilityClass, reason) {
		return common.NewError(common.Unauthorized, target.ID().String(), target.MutabilityClass.String()+" does not permit "+reason.String())
	}
	if p.authorizer != nil && !p.authorizer.HasRole(authorizerPubKey, RoleFor(reason), target.ID()) {
		return common.NewError(common.Unauthorized, target.ID().String(), "authorizer does not hold the "+reason.String()+" role")
	}
	return nil
}

// Admit builds and admits the erasure-record entry once req has reached
// quorum, then tombstones the target (spec.md §4.7 steps 3-4). Any
// validator that observed quorum may call Admit; admission and tombstoning
// are both idempotent, so a race between validators publishing the same
// record is safe. Re-applying a record for a target that is already
// tombstoned is a no-op that returns the id of the erasure record already on
// file, rather than an error (spec.md §8).
func (p *Processor) Admit(req *Request, kp *crypto.HybridKeyPair) (entry.ID, error) {
	if !req.QuorumReached() {
		return entry.ID{}, common.NewError(common.QuorumNotMet, req.Target().String(), "erasure record has not reached quorum co-signatures")
	}

	if tomb, err := p.graph.IsTombstoned(req.Target()); err != nil {
		return entry.ID{}, err
	} else if tomb {
		existing, ok, err := p.graph.ErasureRecordFor(req.Target())
		if err != nil {
			return entry.ID{}, err
		}
		if ok {
			return existing, nil
		}
		return entry.ID{}, common.NewError(common.Erased, req.Target().String(), "target already has an erasure record")
	}

	pub, err := crypto.MarshalHybridPublicKey(&kp.Public)
	if err != nil {
		return entry.ID{}, err
	}
	creator := peers.NodeIDFromHybridPublicKey(pub)
	counter, _, err := p.graph.LastCounter(creator)
	if err != nil {
		return entry.ID{}, err
	}

	record := req.Record()
	e, err := entry.NewBuilder().
		Content(entry.EncodeErasureRecord(record)).
		Parents(record.Target).
		MutabilityClass(entry.Immutable).
		Clock(entry.LogicalClock{Creator: creator, Counter: counter + 1}).
		OESEpoch(p.currentEpoch()).
		Build(kp)
	if err != nil {
		return entry.ID{}, err
	}

	if err := p.graph.Admit(e); err != nil {
		return entry.ID{}, err
	}
	if err := p.graph.Tombstone(record.Target, e.ID()); err != nil {
		return entry.ID{}, err
	}

	return e.ID(), nil
}
