package node

import (
	"encoding/binary"
	"fmt"

	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/gossip"
	"github.com/KazeONGUENE/rope/src/parity"
	"github.com/KazeONGUENE/rope/src/peers"
)

// appendLP/readLP are the same length-prefixed field convention used
// throughout the wire and storage layers (entry.CanonicalEncoding,
// graph's codec.go); node keeps its own tiny copy rather than exporting
// graph's, since the two encode different things over different channels.
func appendLP(dst, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, field...)
}

func readLP(b []byte, off int) ([]byte, int, error) {
	if off+4 > len(b) {
		return nil, 0, fmt.Errorf("node: truncated length prefix")
	}
	l := binary.BigEndian.Uint32(b[off : off+4])
	off += 4
	if off+int(l) > len(b) {
		return nil, 0, fmt.Errorf("node: truncated field")
	}
	return b[off : off+int(l)], off + int(l), nil
}

// encodeEntryWire serializes a full, signed entry for gossip transmission:
// its canonical fields plus signature, the same pairing graph's on-disk
// codec stores, so a receiving node can recompute the id and verify.
func encodeEntryWire(e *entry.Entry) []byte {
	var buf []byte
	buf = appendLP(buf, e.CanonicalEncoding())
	buf = appendLP(buf, crypto.MarshalHybridSignature(e.Signature))
	return buf
}

func decodeEntryWire(raw []byte) (*entry.Entry, error) {
	canonical, off, err := readLP(raw, 0)
	if err != nil {
		return nil, fmt.Errorf("node: entry canonical: %w", err)
	}
	sigBytes, _, err := readLP(raw, off)
	if err != nil {
		return nil, fmt.Errorf("node: entry signature: %w", err)
	}
	sig, err := crypto.UnmarshalHybridSignature(sigBytes)
	if err != nil {
		return nil, err
	}
	return entry.FromWire(canonical, sig)
}

// encodeShardMapWire serializes the sparse index->shard map a shard-fetch
// response carries back over the wire.
func encodeShardMapWire(shards map[int][]byte) []byte {
	var buf []byte
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(shards)))
	buf = append(buf, countBuf[:]...)
	for idx, shard := range shards {
		var idxBuf [4]byte
		binary.BigEndian.PutUint32(idxBuf[:], uint32(idx))
		buf = append(buf, idxBuf[:]...)
		buf = appendLP(buf, shard)
	}
	return buf
}

func decodeShardMapWire(raw []byte) (map[int][]byte, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("node: truncated shard map")
	}
	count := binary.BigEndian.Uint32(raw[:4])
	off := 4
	out := make(map[int][]byte, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(raw) {
			return nil, fmt.Errorf("node: truncated shard index")
		}
		idx := int(binary.BigEndian.Uint32(raw[off : off+4]))
		off += 4
		shard, next, err := readLP(raw, off)
		if err != nil {
			return nil, err
		}
		off = next
		out[idx] = append([]byte(nil), shard...)
	}
	return out, nil
}

// encodeCompanionWire/decodeCompanionWire carry a full parity.Companion
// across the wire for total-loss regeneration (spec.md §4.6 step 2,
// "no local companion at all").
func encodeCompanionWire(c *parity.Companion) []byte {
	var buf []byte
	buf = append(buf, c.EntryID[:]...)
	buf = appendLP(buf, encodeShardList(c.DataShards))
	buf = appendLP(buf, encodeShardList(c.ParityShards))
	buf = appendLP(buf, encodeHashList(c.ShardHashes))
	buf = append(buf, c.Binding[:]...)
	return buf
}

func decodeCompanionWire(raw []byte) (*parity.Companion, error) {
	if len(raw) < 32 {
		return nil, fmt.Errorf("node: truncated companion")
	}
	var entryID [32]byte
	copy(entryID[:], raw[:32])
	off := 32

	dataField, off, err := readLP(raw, off)
	if err != nil {
		return nil, err
	}
	dataShards, err := decodeShardList(dataField)
	if err != nil {
		return nil, err
	}

	parityField, off2, err := readLP(raw, off)
	if err != nil {
		return nil, err
	}
	off = off2
	parityShards, err := decodeShardList(parityField)
	if err != nil {
		return nil, err
	}

	hashField, off3, err := readLP(raw, off)
	if err != nil {
		return nil, err
	}
	off = off3
	hashes, err := decodeHashList(hashField)
	if err != nil {
		return nil, err
	}

	if off+32 > len(raw) {
		return nil, fmt.Errorf("node: truncated companion binding")
	}
	var binding [32]byte
	copy(binding[:], raw[off:off+32])

	return &parity.Companion{
		EntryID:      entryID,
		DataShards:   dataShards,
		ParityShards: parityShards,
		ShardHashes:  hashes,
		Binding:      binding,
	}, nil
}

func encodeShardList(shards [][]byte) []byte {
	var buf []byte
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(shards)))
	buf = append(buf, countBuf[:]...)
	for _, s := range shards {
		buf = appendLP(buf, s)
	}
	return buf
}

func decodeShardList(raw []byte) ([][]byte, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("node: truncated shard list")
	}
	count := binary.BigEndian.Uint32(raw[:4])
	off := 4
	out := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		shard, next, err := readLP(raw, off)
		if err != nil {
			return nil, err
		}
		out = append(out, append([]byte(nil), shard...))
		off = next
	}
	return out, nil
}

func encodeHashList(hashes [][32]byte) []byte {
	var buf []byte
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(hashes)))
	buf = append(buf, countBuf[:]...)
	for _, h := range hashes {
		buf = append(buf, h[:]...)
	}
	return buf
}

// encodeGossipEventWire/decodeGossipEventWire carry a GossipEvent's public
// fields over net.TopicGossip; the id is re-derived on decode by
// gossip.NewEvent, exactly as History.Insert expects.
func encodeGossipEventWire(e *gossip.GossipEvent) []byte {
	var buf []byte
	buf = append(buf, e.Creator[:]...)
	buf = append(buf, e.SelfParent[:]...)
	buf = append(buf, e.OtherParent[:]...)
	var idxBuf, tsBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], e.Index)
	binary.BigEndian.PutUint64(tsBuf[:], uint64(e.Timestamp))
	buf = append(buf, idxBuf[:]...)
	buf = append(buf, tsBuf[:]...)
	buf = appendLP(buf, encodeEntryIDList(e.Entries))
	return buf
}

func decodeGossipEventWire(raw []byte) (*gossip.GossipEvent, error) {
	need := peers.NodeIDSize + gossip.EventIDSize*2 + 16
	if len(raw) < need {
		return nil, fmt.Errorf("node: truncated gossip event")
	}
	off := 0
	var creator peers.NodeID
	copy(creator[:], raw[off:off+peers.NodeIDSize])
	off += peers.NodeIDSize
	var selfParent, otherParent gossip.EventID
	copy(selfParent[:], raw[off:off+gossip.EventIDSize])
	off += gossip.EventIDSize
	copy(otherParent[:], raw[off:off+gossip.EventIDSize])
	off += gossip.EventIDSize
	index := binary.BigEndian.Uint64(raw[off : off+8])
	off += 8
	timestamp := int64(binary.BigEndian.Uint64(raw[off : off+8]))
	off += 8
	entriesField, _, err := readLP(raw, off)
	if err != nil {
		return nil, err
	}
	entries, err := decodeEntryIDList(entriesField)
	if err != nil {
		return nil, err
	}
	return gossip.NewEvent(creator, selfParent, otherParent, index, entries, timestamp), nil
}

func encodeEntryIDList(ids []entry.ID) []byte {
	out := make([]byte, 0, len(ids)*entry.IDSize)
	for _, id := range ids {
		out = append(out, id[:]...)
	}
	return out
}

func decodeEntryIDList(raw []byte) ([]entry.ID, error) {
	if len(raw)%entry.IDSize != 0 {
		return nil, fmt.Errorf("node: malformed entry id list")
	}
	n := len(raw) / entry.IDSize
	out := make([]entry.ID, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], raw[i*entry.IDSize:(i+1)*entry.IDSize])
	}
	return out, nil
}

// OES commitment gossip: multiplexed onto net.TopicAnchors alongside
// nothing else, since anchor promotion itself is derived independently by
// every validator from the shared gossip history and needs no broadcast.
func encodeOESCommitmentWire(validator peers.NodeID, generation uint64, commitment [32]byte) []byte {
	var buf []byte
	buf = append(buf, validator[:]...)
	var genBuf [8]byte
	binary.BigEndian.PutUint64(genBuf[:], generation)
	buf = append(buf, genBuf[:]...)
	buf = append(buf, commitment[:]...)
	return buf
}

func decodeOESCommitmentWire(raw []byte) (validator peers.NodeID, generation uint64, commitment [32]byte, err error) {
	if len(raw) != peers.NodeIDSize+8+32 {
		err = fmt.Errorf("node: truncated oes commitment message")
		return
	}
	off := 0
	copy(validator[:], raw[off:off+peers.NodeIDSize])
	off += peers.NodeIDSize
	generation = binary.BigEndian.Uint64(raw[off : off+8])
	off += 8
	copy(commitment[:], raw[off:off+32])
	return
}

// Erasure co-signing gossip over net.TopicErasure: kind 0 opens a request,
// kind 1 carries one validator's co-signature (spec.md §4.7 step 3).
const (
	erasureMsgKindOpen byte = iota
	erasureMsgKindCoSign
)

func encodeErasureOpenWire(target entry.ID, reason entry.ErasureReason, authorizer []byte, timestamp int64, requesterSig []byte) []byte {
	buf := []byte{erasureMsgKindOpen}
	buf = append(buf, target[:]...)
	buf = append(buf, byte(reason))
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp))
	buf = append(buf, tsBuf[:]...)
	buf = appendLP(buf, authorizer)
	buf = appendLP(buf, requesterSig)
	return buf
}

func decodeErasureOpenWire(raw []byte) (target entry.ID, reason entry.ErasureReason, authorizer []byte, timestamp int64, requesterSig []byte, err error) {
	if len(raw) < entry.IDSize+9 {
		err = fmt.Errorf("node: truncated erasure open message")
		return
	}
	off := 0
	copy(target[:], raw[off:off+entry.IDSize])
	off += entry.IDSize
	reason = entry.ErasureReason(raw[off])
	off++
	timestamp = int64(binary.BigEndian.Uint64(raw[off : off+8]))
	off += 8
	authorizer, off, err = readLP(raw, off)
	if err != nil {
		return
	}
	requesterSig, _, err = readLP(raw, off)
	return
}

func encodeErasureCoSignWire(target entry.ID, validatorPubKey []byte, sig crypto.HybridSignature) []byte {
	buf := []byte{erasureMsgKindCoSign}
	buf = append(buf, target[:]...)
	buf = appendLP(buf, validatorPubKey)
	buf = appendLP(buf, crypto.MarshalHybridSignature(sig))
	return buf
}

func decodeErasureCoSignWire(raw []byte) (target entry.ID, validatorPubKey []byte, sig crypto.HybridSignature, err error) {
	if len(raw) < entry.IDSize {
		err = fmt.Errorf("node: truncated erasure co-sign message")
		return
	}
	off := 0
	copy(target[:], raw[off:off+entry.IDSize])
	off += entry.IDSize
	validatorPubKey, off, err = readLP(raw, off)
	if err != nil {
		return
	}
	sigBytes, _, err := readLP(raw, off)
	if err != nil {
		return
	}
	sig, err = crypto.UnmarshalHybridSignature(sigBytes)
	return
}

func decodeHashList(raw []byte) ([][32]byte, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("node: truncated hash list")
	}
	count := binary.BigEndian.Uint32(raw[:4])
	off := 4
	out := make([][32]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+32 > len(raw) {
			return nil, fmt.Errorf("node: truncated hash")
		}
		var h [32]byte
		copy(h[:], raw[off:off+32])
		out = append(out, h)
		off += 32
	}
	return out, nil
}
