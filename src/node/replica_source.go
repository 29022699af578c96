package node

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/net"
	"github.com/KazeONGUENE/rope/src/parity"
)

// Request kinds carried over net.TopicErasure's bidirectional requests: the
// shard/companion repair requests regen.ReplicaSource needs (spec.md §4.6
// step 2). The erasure-record co-sign flow (spec.md §4.7) travels as
// broadcast messages on the same topic, with its own kind bytes (wire.go).
const (
	reqKindFetchCompanion byte = iota
	reqKindFetchShards
)

// netReplicaSource implements regen.ReplicaSource over the QUIC overlay:
// it asks up to replicationFactor known peers for whatever a local
// Regenerate call could not reconstruct on its own.
type netReplicaSource struct {
	transport *net.Node
}

func newNetReplicaSource(transport *net.Node) *netReplicaSource {
	return &netReplicaSource{transport: transport}
}

func (s *netReplicaSource) candidates(limit uint32) []*net.Peer {
	all := s.transport.Peers()
	if limit > 0 && uint32(len(all)) > limit {
		all = all[:limit]
	}
	return all
}

// FetchCompanion asks peers, one at a time, for a full parity companion.
func (s *netReplicaSource) FetchCompanion(ctx context.Context, id entry.ID) (*parity.Companion, error) {
	req := append([]byte{reqKindFetchCompanion}, id[:]...)
	for _, p := range s.candidates(0) {
		resp, err := p.Request(ctx, net.TopicErasure, req)
		if err != nil || len(resp) == 0 {
			continue
		}
		companion, err := decodeCompanionWire(resp)
		if err != nil {
			continue
		}
		return companion, nil
	}
	return nil, fmt.Errorf("node: no peer supplied a companion for %s", id)
}

// FetchShards asks up to replicationFactor peers for the missing shard
// indices, merging whatever each responds with.
func (s *netReplicaSource) FetchShards(ctx context.Context, id entry.ID, indices []int, replicationFactor uint32) (map[int][]byte, error) {
	req := encodeShardRequest(id, indices)
	out := make(map[int][]byte)
	for _, p := range s.candidates(replicationFactor) {
		resp, err := p.Request(ctx, net.TopicErasure, req)
		if err != nil || len(resp) == 0 {
			continue
		}
		shards, err := decodeShardMapWire(resp)
		if err != nil {
			continue
		}
		for idx, shard := range shards {
			if _, have := out[idx]; !have {
				out[idx] = shard
			}
		}
		if len(out) >= len(indices) {
			break
		}
	}
	return out, nil
}

func encodeShardRequest(id entry.ID, indices []int) []byte {
	buf := append([]byte{reqKindFetchShards}, id[:]...)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(indices)))
	buf = append(buf, countBuf[:]...)
	for _, idx := range indices {
		var idxBuf [4]byte
		binary.BigEndian.PutUint32(idxBuf[:], uint32(idx))
		buf = append(buf, idxBuf[:]...)
	}
	return buf
}

func decodeShardRequest(raw []byte) (entry.ID, []int, error) {
	if len(raw) < entry.IDSize+4 {
		return entry.ID{}, nil, fmt.Errorf("node: truncated shard request")
	}
	var id entry.ID
	copy(id[:], raw[:entry.IDSize])
	off := entry.IDSize
	count := binary.BigEndian.Uint32(raw[off : off+4])
	off += 4
	indices := make([]int, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(raw) {
			return entry.ID{}, nil, fmt.Errorf("node: truncated shard index")
		}
		indices = append(indices, int(binary.BigEndian.Uint32(raw[off:off+4])))
		off += 4
	}
	return id, indices, nil
}

// handleErasureRequest answers a peer's companion/shard fetch, serving
// only from what this node has locally admitted (spec.md §4.6: a replica
// never fabricates shards it does not hold).
func (n *Node) handleErasureRequest(_ *net.Peer, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("node: empty erasure request")
	}
	switch payload[0] {
	case reqKindFetchCompanion:
		if len(payload) < 1+entry.IDSize {
			return nil, fmt.Errorf("node: truncated companion request")
		}
		var id entry.ID
		copy(id[:], payload[1:1+entry.IDSize])
		companion, ok, err := n.graph.Parity(id)
		if err != nil || !ok {
			return nil, fmt.Errorf("node: no local companion for %s", id)
		}
		return encodeCompanionWire(companion), nil

	case reqKindFetchShards:
		id, indices, err := decodeShardRequest(payload[1:])
		if err != nil {
			return nil, err
		}
		companion, ok, err := n.graph.Parity(id)
		if err != nil || !ok {
			return nil, fmt.Errorf("node: no local companion for %s", id)
		}
		all := companion.AllShards()
		out := make(map[int][]byte)
		for _, idx := range indices {
			if idx >= 0 && idx < len(all) && len(all[idx]) > 0 {
				out[idx] = all[idx]
			}
		}
		return encodeShardMapWire(out), nil

	default:
		return nil, fmt.Errorf("node: unknown erasure request kind %d", payload[0])
	}
}
