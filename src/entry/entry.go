// Package entry implements the "string": the content-addressed, signed
// record that is the atomic unit of the core DAG (spec.md §3).
package entry

import (
	"encoding/binary"
	"fmt"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/peers"
)

// IDSize is the length in bytes of an entry id.
const IDSize = crypto.HashSize

// AtomSize is the width of one content atom (spec.md §3: "internally an
// ordered sequence of 32-byte atoms").
const AtomSize = 32

// MaxContentSize is the maximum entry content size: 10 MiB.
const MaxContentSize = 10 * 1024 * 1024

// MaxParents is the maximum number of parents an entry may declare.
const MaxParents = 256

// MinReplicationFactor and MaxReplicationFactor bound replication_factor.
const (
	MinReplicationFactor = 3
	MaxReplicationFactor = 10
	DefaultReplication    = 5
)

// ID identifies an entry: the 32-byte hash of its canonical encoding plus
// signature.
type ID [IDSize]byte

// String returns the 0X-prefixed hex representation of the id.
func (id ID) String() string {
	return common.EncodeToString(id[:])
}

// Less gives the lexicographic ordering over ids used for every tie-break
// in the gossip and anchor-selection rules (spec.md §4.3, §4.4).
func (id ID) Less(other ID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// IsZero reports whether id is the all-zero id (never a valid entry id,
// since hashing any canonical encoding is vanishingly unlikely to produce
// it; used as a sentinel for "no parent"/"no target").
func (id ID) IsZero() bool {
	return id == ID{}
}

// MutabilityClass governs whether, and how, an entry may later be erased
// (spec.md §3).
type MutabilityClass uint8

const (
	// Immutable entries can never be erased (genesis, anchors, attestations).
	Immutable MutabilityClass = iota
	// OwnerErasable entries may be erased by their own creator.
	OwnerErasable
	// TtlErasable entries auto-qualify for erasure once their declared TTL
	// has elapsed.
	TtlErasable
	// PolicyErasable entries may be erased under an external legal or
	// regulatory order.
	PolicyErasable
)

func (m MutabilityClass) String() string {
	switch m {
	case Immutable:
		return "Immutable"
	case OwnerErasable:
		return "OwnerErasable"
	case TtlErasable:
		return "TtlErasable"
	case PolicyErasable:
		return "PolicyErasable"
	default:
		return "Unknown"
	}
}

// LogicalClock pairs a creator identity with a monotonically increasing
// per-creator counter (spec.md §3 "clock").
type LogicalClock struct {
	Creator peers.NodeID
	Counter uint64
}

// Bytes returns the canonical encoding of the clock: creator id followed by
// the big-endian counter.
func (c LogicalClock) Bytes() []byte {
	out := make([]byte, len(c.Creator)+8)
	copy(out, c.Creator[:])
	binary.BigEndian.PutUint64(out[len(c.Creator):], c.Counter)
	return out
}

// ContentKind is the leading type-marker byte dispatching content
// interpretation: attestations and erasure records are ordinary entries
// whose content is a tagged variant (spec.md §9 "recursive references").
type ContentKind uint8

const (
	// KindData is an opaque application payload.
	KindData ContentKind = iota
	// KindAttestation is a typed attestation envelope (spec.md §3).
	KindAttestation
	// KindErasure is a typed erasure-record envelope (spec.md §3, §4.7).
	KindErasure
	// KindTombstone marks content that has been erased in place.
	KindTombstone
)

// Entry is the "string": a content-addressed, signed record in the DAG.
type Entry struct {
	id ID // cached, derived — never the source of truth

	Content            []byte
	Clock              LogicalClock
	Parents            []ID // ascending id order, canonical
	ReplicationFactor  uint32
	MutabilityClass    MutabilityClass
	OESEpoch           uint64
	OESProof           []byte
	Creator            []byte // marshalled hybrid public key
	Signature          crypto.HybridSignature
}

// ContentKind reports the leading type marker of Content, or KindData if
// Content is empty.
func (e *Entry) ContentKind() ContentKind {
	if len(e.Content) == 0 {
		return KindData
	}
	return ContentKind(e.Content[0])
}

// EncodeData wraps an opaque application payload as entry Content, prefixed
// with the KindData type marker like every other variant, so ContentKind
// never mistakes a user payload starting with 0x01-0x03 for a typed
// attestation, erasure record, or tombstone.
func EncodeData(payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, byte(KindData))
	return append(buf, payload...)
}

// DecodeData strips the KindData marker EncodeData added, returning the
// original payload. It rejects content not tagged KindData.
func DecodeData(content []byte) ([]byte, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("data: empty content")
	}
	if ContentKind(content[0]) != KindData {
		return nil, fmt.Errorf("data: wrong content kind %d", content[0])
	}
	return content[1:], nil
}

// Atoms splits Content into 32-byte atoms, zero-padding the final atom if
// Content's length is not a multiple of AtomSize.
func (e *Entry) Atoms() [][AtomSize]byte {
	n := (len(e.Content) + AtomSize - 1) / AtomSize
	atoms := make([][AtomSize]byte, n)
	for i := 0; i < n; i++ {
		start := i * AtomSize
		end := start + AtomSize
		if end > len(e.Content) {
			end = len(e.Content)
		}
		copy(atoms[i][:], e.Content[start:end])
	}
	return atoms
}

// CanonicalEncoding returns the length-prefixed, fixed-field-order encoding
// used both for id derivation and for the signed message (spec.md §6):
// content, clock, parents (ascending id order), replication, mutability,
// oes_epoch, creator, oes_proof.
func (e *Entry) CanonicalEncoding() []byte {
	var buf []byte
	buf = appendLP(buf, e.Content)
	buf = appendLP(buf, e.Clock.Bytes())

	sorted := SortedParentIDs(e.Parents)
	var parentsBuf []byte
	for _, p := range sorted {
		parentsBuf = append(parentsBuf, p[:]...)
	}
	buf = appendLP(buf, parentsBuf)

	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], e.ReplicationFactor)
	buf = append(buf, u32[:]...)

	buf = append(buf, byte(e.MutabilityClass))

	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], e.OESEpoch)
	buf = append(buf, u64[:]...)

	buf = appendLP(buf, e.Creator)
	buf = appendLP(buf, e.OESProof)
	return buf
}

func appendLP(dst, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, field...)
}

// SortedParentIDs returns a copy of ids in ascending lexicographic order.
func SortedParentIDs(ids []ID) []ID {
	out := make([]ID, len(ids))
	copy(out, ids)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Less(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// computeID derives id = hash(canonical || hybrid_signature), per spec.md §6.
func computeID(canonical []byte, sig crypto.HybridSignature) ID {
	sigBytes := crypto.MarshalHybridSignature(sig)
	var id ID
	copy(id[:], crypto.HashBytes(crypto.DomainEntry, canonical, sigBytes))
	return id
}

// ID returns the entry's cached id.
func (e *Entry) ID() ID {
	return e.id
}

// Validate checks the structural invariants Validate can know without graph
// or OES context (size, parent count, id derivation). Parentage resolution,
// clock monotonicity against the graph, and OES epoch window are checked by
// the graph (spec.md §4.2).
func (e *Entry) Validate() error {
	if len(e.Content) > MaxContentSize {
		return common.NewError(common.OversizeContent, e.id.String(), fmt.Sprintf("%d bytes", len(e.Content)))
	}
	if len(e.Parents) > MaxParents {
		return common.NewError(common.OversizeContent, e.id.String(), fmt.Sprintf("%d parents", len(e.Parents)))
	}
	if e.ReplicationFactor != 0 && (e.ReplicationFactor < MinReplicationFactor || e.ReplicationFactor > MaxReplicationFactor) {
		return common.NewError(common.OversizeContent, e.id.String(), fmt.Sprintf("replication factor %d out of range", e.ReplicationFactor))
	}
	if hasCycleInDeclaredParents(e.id, e.Parents) {
		return common.NewError(common.CircularParentage, e.id.String(), "entry lists itself as a parent")
	}
	recomputed := computeID(e.CanonicalEncoding(), e.Signature)
	if recomputed != e.id {
		return common.NewError(common.InvalidSignature, e.id.String(), "id does not match canonical encoding")
	}
	return nil
}

func hasCycleInDeclaredParents(self ID, parents []ID) bool {
	for _, p := range parents {
		if p == self {
			return true
		}
	}
	return false
}

// Verify checks the entry's hybrid signature against the given public key.
func (e *Entry) Verify(pub *crypto.HybridPublicKey) bool {
	return crypto.Verify(pub, e.CanonicalEncoding(), e.Signature)
}

// DecodeCanonical parses the wire form produced by CanonicalEncoding back
// into an Entry's non-signature fields, the inverse of CanonicalEncoding.
func DecodeCanonical(canonical []byte) (*Entry, error) {
	off := 0
	content, off, err := readLP(canonical, off)
	if err != nil {
		return nil, fmt.Errorf("canonical: content: %w", err)
	}
	clockBytes, off, err := readLP(canonical, off)
	if err != nil {
		return nil, fmt.Errorf("canonical: clock: %w", err)
	}
	if len(clockBytes) != len(peers.NodeID{})+8 {
		return nil, fmt.Errorf("canonical: malformed clock")
	}
	var clock LogicalClock
	copy(clock.Creator[:], clockBytes[:len(clock.Creator)])
	clock.Counter = binary.BigEndian.Uint64(clockBytes[len(clock.Creator):])

	parentsBytes, off, err := readLP(canonical, off)
	if err != nil {
		return nil, fmt.Errorf("canonical: parents: %w", err)
	}
	if len(parentsBytes)%IDSize != 0 {
		return nil, fmt.Errorf("canonical: malformed parent list")
	}
	n := len(parentsBytes) / IDSize
	parents := make([]ID, n)
	for i := 0; i < n; i++ {
		copy(parents[i][:], parentsBytes[i*IDSize:(i+1)*IDSize])
	}

	if off+4+1+8 > len(canonical) {
		return nil, fmt.Errorf("canonical: truncated fixed fields")
	}
	replication := binary.BigEndian.Uint32(canonical[off : off+4])
	off += 4
	mutability := MutabilityClass(canonical[off])
	off++
	oesEpoch := binary.BigEndian.Uint64(canonical[off : off+8])
	off += 8

	creator, off, err := readLP(canonical, off)
	if err != nil {
		return nil, fmt.Errorf("canonical: creator: %w", err)
	}
	oesProof, off, err := readLP(canonical, off)
	if err != nil {
		return nil, fmt.Errorf("canonical: oes_proof: %w", err)
	}
	if off != len(canonical) {
		return nil, fmt.Errorf("canonical: trailing bytes")
	}

	return &Entry{
		Content:           content,
		Clock:             clock,
		Parents:           parents,
		ReplicationFactor: replication,
		MutabilityClass:   mutability,
		OESEpoch:          oesEpoch,
		Creator:           creator,
		OESProof:          oesProof,
	}, nil
}

func readLP(b []byte, off int) ([]byte, int, error) {
	if off+4 > len(b) {
		return nil, 0, fmt.Errorf("truncated length prefix")
	}
	l := binary.BigEndian.Uint32(b[off : off+4])
	off += 4
	if off+int(l) > len(b) {
		return nil, 0, fmt.Errorf("truncated field")
	}
	return b[off : off+int(l)], off + int(l), nil
}

// FromWire reconstructs a full Entry (including its cached id) from a
// canonical encoding and hybrid signature, the form every admit path
// (storage reload, gossip receipt) decodes.
func FromWire(canonical []byte, sig crypto.HybridSignature) (*Entry, error) {
	e, err := DecodeCanonical(canonical)
	if err != nil {
		return nil, err
	}
	e.Signature = sig
	e.id = computeID(canonical, sig)
	return e, nil
}
