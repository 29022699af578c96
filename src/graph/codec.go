package graph

import (
	"encoding/binary"
	"fmt"

	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/parity"
)

// encodeEntry serializes a full Entry for storage: canonical fields plus the
// signature and cached id, so decodeEntry never needs to re-derive it.
func encodeEntry(e *entry.Entry) ([]byte, error) {
	var buf []byte
	id := e.ID()
	buf = append(buf, id[:]...)
	buf = appendLP(buf, e.CanonicalEncoding())
	buf = appendLP(buf, crypto.MarshalHybridSignature(e.Signature))
	return buf, nil
}

func decodeEntry(raw []byte) (*entry.Entry, error) {
	if len(raw) < entry.IDSize {
		return nil, fmt.Errorf("graph: truncated entry record")
	}
	off := entry.IDSize

	canonical, off2, err := readLP(raw, off)
	if err != nil {
		return nil, fmt.Errorf("graph: canonical: %w", err)
	}
	off = off2

	sigBytes, off3, err := readLP(raw, off)
	if err != nil {
		return nil, fmt.Errorf("graph: signature: %w", err)
	}
	off = off3

	sig, err := crypto.UnmarshalHybridSignature(sigBytes)
	if err != nil {
		return nil, err
	}

	return entry.FromWire(canonical, sig)
}

func appendLP(dst, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, field...)
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

func encodeParentList(ids []entry.ID) []byte {
	out := make([]byte, 0, len(ids)*entry.IDSize)
	for _, id := range ids {
		out = append(out, id[:]...)
	}
	return out
}

func decodeParentList(raw []byte) ([]entry.ID, error) {
	if len(raw)%entry.IDSize != 0 {
		return nil, fmt.Errorf("graph: malformed parent list")
	}
	n := len(raw) / entry.IDSize
	out := make([]entry.ID, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], raw[i*entry.IDSize:(i+1)*entry.IDSize])
	}
	return out, nil
}

func encodeCounter(c uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], c)
	return buf[:]
}

func decodeCounter(raw []byte) uint64 {
	if len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

func encodeCompanion(c *parity.Companion) []byte {
	var buf []byte
	buf = append(buf, c.EntryID[:]...)
	buf = append(buf, c.Binding[:]...)

	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(c.DataShards)))
	buf = append(buf, n[:]...)
	binary.BigEndian.PutUint32(n[:], uint32(len(c.ParityShards)))
	buf = append(buf, n[:]...)

	for _, s := range c.DataShards {
		buf = appendLP(buf, s)
	}
	for _, s := range c.ParityShards {
		buf = appendLP(buf, s)
	}
	for _, h := range c.ShardHashes {
		buf = append(buf, h[:]...)
	}
	return buf
}

func decodeCompanion(raw []byte) (*parity.Companion, error) {
	if len(raw) < entry.IDSize+32+8 {
		return nil, fmt.Errorf("graph: truncated parity companion")
	}
	var c parity.Companion
	off := 0
	copy(c.EntryID[:], raw[off:off+32])
	off += 32
	copy(c.Binding[:], raw[off:off+32])
	off += 32

	dataCount := binary.BigEndian.Uint32(raw[off : off+4])
	off += 4
	parityCount := binary.BigEndian.Uint32(raw[off : off+4])
	off += 4

	for i := uint32(0); i < dataCount; i++ {
		s, noff, err := readLP(raw, off)
		if err != nil {
			return nil, err
		}
		c.DataShards = append(c.DataShards, s)
		off = noff
	}
	for i := uint32(0); i < parityCount; i++ {
		s, noff, err := readLP(raw, off)
		if err != nil {
			return nil, err
		}
		c.ParityShards = append(c.ParityShards, s)
		off = noff
	}
	total := int(dataCount + parityCount)
	if off+total*32 != len(raw) {
		return nil, fmt.Errorf("graph: malformed shard hash list")
	}
	for i := 0; i < total; i++ {
		var h [32]byte
		copy(h[:], raw[off:off+32])
		c.ShardHashes = append(c.ShardHashes, h)
		off += 32
	}
	return &c, nil
}
