package entry

import "fmt"

// ErasureReason enumerates the allowed reasons for a controlled-erasure
// request (spec.md §4.7). Each reason has a distinct authorizer role,
// checked by the policy collaborator, not by this package.
type ErasureReason uint8

const (
	ReasonRegulatoryRightToErasure ErasureReason = iota
	ReasonOwnerInitiated
	ReasonPolicyTTL
	ReasonExternalLegalOrder
)

func (r ErasureReason) String() string {
	switch r {
	case ReasonRegulatoryRightToErasure:
		return "RegulatoryRightToErasure"
	case ReasonOwnerInitiated:
		return "OwnerInitiated"
	case ReasonPolicyTTL:
		return "PolicyTTL"
	case ReasonExternalLegalOrder:
		return "ExternalLegalOrder"
	default:
		return "Unknown"
	}
}

// ErasureRecord is the decoded form of a KindErasure entry's content
// (spec.md §3, §4.7). QuorumSignatures accumulate as validators co-sign;
// once len(QuorumSignatures) >= required the record is admitted.
type ErasureRecord struct {
	Target           ID
	Reason           ErasureReason
	Authorizer       []byte // marshalled hybrid public key
	Timestamp        int64
	RequesterSig     []byte
	QuorumSignatures [][]byte
}

// EncodeErasureRecord serializes an ErasureRecord as entry Content, prefixed
// with the KindErasure type marker.
func EncodeErasureRecord(r ErasureRecord) []byte {
	var buf []byte
	buf = append(buf, byte(KindErasure))
	buf = append(buf, r.Target[:]...)
	buf = append(buf, byte(r.Reason))
	buf = appendLP(buf, r.Authorizer)

	var ts [8]byte
	for i := 0; i < 8; i++ {
		ts[i] = byte(r.Timestamp >> (8 * (7 - i)))
	}
	buf = append(buf, ts[:]...)

	buf = appendLP(buf, r.RequesterSig)

	var countBuf [4]byte
	countBuf[0] = byte(len(r.QuorumSignatures) >> 24)
	countBuf[1] = byte(len(r.QuorumSignatures) >> 16)
	countBuf[2] = byte(len(r.QuorumSignatures) >> 8)
	countBuf[3] = byte(len(r.QuorumSignatures))
	buf = append(buf, countBuf[:]...)
	for _, sig := range r.QuorumSignatures {
		buf = appendLP(buf, sig)
	}
	return buf
}

// DecodeErasureRecord parses entry Content previously produced by
// EncodeErasureRecord.
func DecodeErasureRecord(content []byte) (ErasureRecord, error) {
	if len(content) < 1+IDSize+1 {
		return ErasureRecord{}, fmt.Errorf("erasure record: truncated header")
	}
	if ContentKind(content[0]) != KindErasure {
		return ErasureRecord{}, fmt.Errorf("erasure record: wrong content kind %d", content[0])
	}
	off := 1
	var r ErasureRecord
	copy(r.Target[:], content[off:off+IDSize])
	off += IDSize

	r.Reason = ErasureReason(content[off])
	off++

	authorizer, n, err := readLP(content, off)
	if err != nil {
		return ErasureRecord{}, fmt.Errorf("erasure record: authorizer: %w", err)
	}
	r.Authorizer = authorizer
	off = n

	if off+8 > len(content) {
		return ErasureRecord{}, fmt.Errorf("erasure record: truncated timestamp")
	}
	var ts int64
	for i := 0; i < 8; i++ {
		ts = ts<<8 | int64(content[off+i])
	}
	r.Timestamp = ts
	off += 8

	requesterSig, n, err := readLP(content, off)
	if err != nil {
		return ErasureRecord{}, fmt.Errorf("erasure record: requester sig: %w", err)
	}
	r.RequesterSig = requesterSig
	off = n

	if off+4 > len(content) {
		return ErasureRecord{}, fmt.Errorf("erasure record: truncated quorum count")
	}
	count := int(content[off])<<24 | int(content[off+1])<<16 | int(content[off+2])<<8 | int(content[off+3])
	off += 4

	for i := 0; i < count; i++ {
		sig, n, err := readLP(content, off)
		if err != nil {
			return ErasureRecord{}, fmt.Errorf("erasure record: quorum sig %d: %w", i, err)
		}
		r.QuorumSignatures = append(r.QuorumSignatures, sig)
		off = n
	}

	if off != len(content) {
		return ErasureRecord{}, fmt.Errorf("erasure record: trailing bytes")
	}
	return r, nil
}

// Tombstone returns the KindTombstone content that replaces an erased
// entry's payload, preserving only the marker byte (spec.md §3: "the
// entry id and clock survive" — they live on the Entry struct, not in
// Content).
func Tombstone() []byte {
	return []byte{byte(KindTombstone)}
}

// IsTombstoned reports whether content is a tombstone marker.
func IsTombstoned(content []byte) bool {
	return len(content) == 1 && ContentKind(content[0]) == KindTombstone
}
