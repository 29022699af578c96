package entry

import (
	"encoding/binary"
	"fmt"
)

// AttestationType enumerates the transitions spec.md §9 mandates explicit
// attestations for, and no others: anchor promotion in thin networks,
// erasure authorization quorum, and validator-set changes.
type AttestationType uint8

const (
	AttestAnchorPromotion AttestationType = iota
	AttestErasureQuorum
	AttestValidatorSetChange
)

// Attestation is the decoded form of a KindAttestation entry's content: a
// typed assertion about another entry (spec.md §3).
type Attestation struct {
	Target    ID
	Validator []byte // marshalled hybrid public key
	Type      AttestationType
	OESEpoch  uint64
	Signature []byte // hybrid signature over Target||Type||OESEpoch
}

// EncodeAttestation serializes an Attestation as entry Content, prefixed
// with the KindAttestation type marker.
func EncodeAttestation(a Attestation) []byte {
	var buf []byte
	buf = append(buf, byte(KindAttestation))
	buf = append(buf, a.Target[:]...)
	buf = appendLP(buf, a.Validator)
	buf = append(buf, byte(a.Type))
	var epoch [8]byte
	binary.BigEndian.PutUint64(epoch[:], a.OESEpoch)
	buf = append(buf, epoch[:]...)
	buf = appendLP(buf, a.Signature)
	return buf
}

// DecodeAttestation parses entry Content previously produced by
// EncodeAttestation. It rejects anything not tagged KindAttestation or
// structurally truncated, never panicking on malformed input (spec.md §9).
func DecodeAttestation(content []byte) (Attestation, error) {
	if len(content) < 1+IDSize {
		return Attestation{}, fmt.Errorf("attestation: truncated header")
	}
	if ContentKind(content[0]) != KindAttestation {
		return Attestation{}, fmt.Errorf("attestation: wrong content kind %d", content[0])
	}
	off := 1
	var a Attestation
	copy(a.Target[:], content[off:off+IDSize])
	off += IDSize

	validator, n, err := readLPAttestation(content, off)
	if err != nil {
		return Attestation{}, fmt.Errorf("attestation: validator: %w", err)
	}
	a.Validator = validator
	off = n

	if off+1+8 > len(content) {
		return Attestation{}, fmt.Errorf("attestation: truncated type/epoch")
	}
	a.Type = AttestationType(content[off])
	off++
	a.OESEpoch = binary.BigEndian.Uint64(content[off : off+8])
	off += 8

	sig, n, err := readLPAttestation(content, off)
	if err != nil {
		return Attestation{}, fmt.Errorf("attestation: signature: %w", err)
	}
	a.Signature = sig
	off = n

	if off != len(content) {
		return Attestation{}, fmt.Errorf("attestation: trailing bytes")
	}
	return a, nil
}

func readLPAttestation(content []byte, off int) ([]byte, int, error) {
	if off+4 > len(content) {
		return nil, 0, fmt.Errorf("truncated length prefix")
	}
	l := binary.BigEndian.Uint32(content[off : off+4])
	off += 4
	if off+int(l) > len(content) {
		return nil, 0, fmt.Errorf("truncated field: need %d, have %d", l, len(content)-off)
	}
	field := content[off : off+int(l)]
	return field, off + int(l), nil
}
