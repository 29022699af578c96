// Package parity implements the erasure-coded parity companion of an entry:
// Reed-Solomon shard generation, the cryptographic binding bundled with it,
// and the shard-level repair primitives src/regen builds on (spec.md §4.2,
// §4.6).
package parity

import (
	"fmt"

	"github.com/klauspost/reedsolomon"

	"github.com/KazeONGUENE/rope/src/crypto"
)

// ShardSize is the fixed width of one data or parity shard (spec.md §4.2).
const ShardSize = 4096

// ShardCounts returns the (data, parity) shard counts for a given
// replication factor ρ: data=ρ, parity=⌊(ρ−1)/2⌋ (spec.md §4.2).
func ShardCounts(replicationFactor uint32) (data, parityShards int) {
	rho := int(replicationFactor)
	return rho, (rho - 1) / 2
}

// Companion is the one-to-one parity sidecar of an entry (spec.md §3):
// the data and parity shards, kept separate so loss of one set does not
// imply loss of the other, plus the cryptographic binding bundled with
// the original content hash.
type Companion struct {
	EntryID        [32]byte
	DataShards     [][]byte
	ParityShards   [][]byte
	ShardHashes    [][32]byte // one per data+parity shard, in order
	Binding        [32]byte  // hash(shard hashes || original content hash)
}

// Generate Reed-Solomon-encodes content into data+parity shards and
// produces the Companion's cryptographic binding (spec.md §4.2
// generate_parity).
func Generate(entryID [32]byte, content []byte, replicationFactor uint32) (*Companion, error) {
	dataShards, parityShards := ShardCounts(replicationFactor)
	if dataShards < 1 {
		return nil, fmt.Errorf("parity: replication factor %d yields %d data shards", replicationFactor, dataShards)
	}

	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("parity: new encoder: %w", err)
	}

	shards, err := enc.Split(padToShardMultiple(content, dataShards))
	if err != nil {
		return nil, fmt.Errorf("parity: split: %w", err)
	}
	for len(shards) < dataShards+parityShards {
		shards = append(shards, make([]byte, len(shards[0])))
	}
	if err := enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("parity: encode: %w", err)
	}

	hashes := make([][32]byte, len(shards))
	for i, s := range shards {
		hashes[i] = crypto.Hash(crypto.DomainShard, s)
	}

	contentHash := crypto.Hash(crypto.DomainEntry, content)
	binding := crypto.Hash(crypto.DomainCommitment, flattenHashes(hashes), contentHash[:])

	return &Companion{
		EntryID:      entryID,
		DataShards:   shards[:dataShards],
		ParityShards: shards[dataShards:],
		ShardHashes:  hashes,
		Binding:      binding,
	}, nil
}

// padToShardMultiple zero-pads content so its length is a multiple of
// dataShards*ShardSize, the layout reedsolomon.Split requires.
func padToShardMultiple(content []byte, dataShards int) []byte {
	unit := dataShards * ShardSize
	if unit == 0 {
		return content
	}
	rem := len(content) % unit
	if rem == 0 && len(content) > 0 {
		return content
	}
	padded := make([]byte, len(content)+(unit-rem))
	copy(padded, content)
	return padded
}

func flattenHashes(hashes [][32]byte) []byte {
	out := make([]byte, 0, len(hashes)*32)
	for _, h := range hashes {
		out = append(out, h[:]...)
	}
	return out
}

// VerifyShard checks a single shard against its recorded hash, the
// per-shard check the mismatch-error damage class relies on (spec.md §4.6).
func (c *Companion) VerifyShard(index int, shard []byte) bool {
	if index < 0 || index >= len(c.ShardHashes) {
		return false
	}
	return crypto.Hash(crypto.DomainShard, shard) == c.ShardHashes[index]
}

// AllShards returns data shards followed by parity shards, the layout
// reedsolomon.Reconstruct expects.
func (c *Companion) AllShards() [][]byte {
	out := make([][]byte, 0, len(c.DataShards)+len(c.ParityShards))
	out = append(out, c.DataShards...)
	out = append(out, c.ParityShards...)
	return out
}

// Decode reconstructs the original content from a set of shards (some of
// which may be nil for missing), recovering succeeds if at least
// data_shards of data_shards+parity_shards survive (spec.md §4.6 step 3).
func Decode(shards [][]byte, dataShards, parityShardsCount, originalLen int) ([]byte, error) {
	enc, err := reedsolomon.New(dataShards, parityShardsCount)
	if err != nil {
		return nil, fmt.Errorf("parity: new encoder: %w", err)
	}

	work := make([][]byte, len(shards))
	copy(work, shards)

	ok, err := enc.Verify(work)
	if err != nil || !ok {
		if err := enc.Reconstruct(work); err != nil {
			return nil, fmt.Errorf("parity: reconstruct: %w", err)
		}
	}

	out := make([]byte, 0, dataShards*ShardSize)
	for _, s := range work[:dataShards] {
		out = append(out, s...)
	}
	if originalLen >= 0 && originalLen <= len(out) {
		out = out[:originalLen]
	}
	return out, nil
}
