package entry

import (
	"fmt"

	"github.com/KazeONGUENE/rope/src/crypto"
)

// Builder constructs an Entry, computing its canonical encoding, signature,
// and id only at Build() time — the Rust source's RopeStringBuilder has the
// same shape, for the same reason: the canonical encoding's field order must
// be fixed before signing, so every field is collected first.
type Builder struct {
	e   Entry
	err error
}

// NewBuilder starts a Builder with sane defaults: replication factor 5,
// OwnerErasable mutability.
func NewBuilder() *Builder {
	return &Builder{e: Entry{
		ReplicationFactor: DefaultReplication,
		MutabilityClass:   OwnerErasable,
	}}
}

// Content sets the entry's opaque payload.
func (b *Builder) Content(content []byte) *Builder {
	b.e.Content = content
	return b
}

// Clock sets the entry's logical clock.
func (b *Builder) Clock(clock LogicalClock) *Builder {
	b.e.Clock = clock
	return b
}

// Parents sets the entry's declared parents.
func (b *Builder) Parents(parents ...ID) *Builder {
	b.e.Parents = parents
	return b
}

// ReplicationFactor overrides the default replication factor; clamped to
// [MinReplicationFactor, MaxReplicationFactor].
func (b *Builder) ReplicationFactor(n uint32) *Builder {
	if n < MinReplicationFactor {
		n = MinReplicationFactor
	}
	if n > MaxReplicationFactor {
		n = MaxReplicationFactor
	}
	b.e.ReplicationFactor = n
	return b
}

// MutabilityClass overrides the default mutability class.
func (b *Builder) MutabilityClass(m MutabilityClass) *Builder {
	b.e.MutabilityClass = m
	return b
}

// OESEpoch sets the generation the entry's signature is minted against.
func (b *Builder) OESEpoch(epoch uint64) *Builder {
	b.e.OESEpoch = epoch
	return b
}

// OESProof sets the commitment chaining the entry to its OES epoch.
func (b *Builder) OESProof(proof []byte) *Builder {
	b.e.OESProof = proof
	return b
}

// Creator sets the marshalled hybrid public key of the signer.
func (b *Builder) Creator(pub []byte) *Builder {
	b.e.Creator = pub
	return b
}

// Build finalizes the entry: validates size constraints, then signs and
// derives the id. The returned entry's id and signature are immutable from
// this point on — any field change requires building a new entry.
func (b *Builder) Build(kp *crypto.HybridKeyPair) (*Entry, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.e.Content) > MaxContentSize {
		return nil, fmt.Errorf("content exceeds maximum size: %d bytes", len(b.e.Content))
	}
	if len(b.e.Parents) > MaxParents {
		return nil, fmt.Errorf("too many parents: %d", len(b.e.Parents))
	}

	pub, err := crypto.MarshalHybridPublicKey(&kp.Public)
	if err != nil {
		return nil, err
	}
	b.e.Creator = pub

	canonical := b.e.CanonicalEncoding()
	sig, err := crypto.Sign(kp, canonical)
	if err != nil {
		return nil, err
	}
	b.e.Signature = sig
	b.e.id = computeID(canonical, sig)

	out := b.e
	return &out, nil
}

// Genesis builds the unique genesis entry: empty parents, Immutable,
// signed by the founding keypair. Every honest entry must transitively
// reference it (spec.md §3).
func Genesis(kp *crypto.HybridKeyPair) (*Entry, error) {
	return NewBuilder().
		Content(EncodeData([]byte("genesis"))).
		MutabilityClass(Immutable).
		Clock(LogicalClock{Creator: nodeIDOf(kp)}).
		Build(kp)
}

func nodeIDOf(kp *crypto.HybridKeyPair) (id [32]byte) {
	pub, err := crypto.MarshalHybridPublicKey(&kp.Public)
	if err != nil {
		return id
	}
	copy(id[:], crypto.HashBytes(crypto.DomainPeerSet, pub))
	return id
}
