package regen

import (
	"context"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/parity"
)

// EntryStore is the subset of *graph.Graph regeneration needs, kept as an
// interface so repair logic can be exercised against a fake in tests
// without a live storage backend. *graph.Graph satisfies it as-is.
type EntryStore interface {
	Get(id entry.ID) (*entry.Entry, bool, error)
	Parity(id entry.ID) (*parity.Companion, bool, error)
	IsTombstoned(id entry.ID) (bool, error)
}

// ReplicaSource fetches from other validators what a node cannot reconstruct
// from its own parity companion (spec.md §4.6 step 2: "contact up to
// replication_factor replicas"). The network wiring behind it lives in
// src/node; regen only needs this narrow surface.
type ReplicaSource interface {
	// FetchCompanion returns a full parity companion for id from some
	// replica, used when this node holds no local companion at all
	// (TotalLoss).
	FetchCompanion(ctx context.Context, id entry.ID) (*parity.Companion, error)
	// FetchShards returns replacement bytes for the given indices into a
	// companion's AllShards() ordering, contacted from up to
	// replicationFactor replicas. A missing index in the result means that
	// replica set could not supply it.
	FetchShards(ctx context.Context, id entry.ID, indices []int, replicationFactor uint32) (map[int][]byte, error)
}

const maxRegenAttempts = 2

// Regenerator reconstructs entry content from parity shards, contacting
// replicas when local shards alone are insufficient (spec.md §4.6).
type Regenerator struct {
	store  EntryStore
	source ReplicaSource
}

// New creates a Regenerator over store. source may be nil, in which case
// regeneration is limited to what the local companion alone can repair.
func New(store EntryStore, source ReplicaSource) *Regenerator {
	return &Regenerator{store: store, source: source}
}

// Regenerate reconstructs id's content per spec.md §4.6's detect-contact-
// decode-verify procedure. It never mutates the store; the caller decides
// what to do with the recovered bytes (typically re-encoding a fresh
// companion locally).
func (r *Regenerator) Regenerate(ctx context.Context, id entry.ID) ([]byte, Class, error) {
	if tomb, err := r.store.IsTombstoned(id); err != nil {
		return nil, 0, err
	} else if tomb {
		return nil, 0, common.NewError(common.Erased, id.String(), "regeneration blocked: entry has an erasure record")
	}

	e, ok, err := r.store.Get(id)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, common.NewError(common.NotFound, id.String(), "unknown entry")
	}

	companion, hasLocal, err := r.store.Parity(id)
	if err != nil {
		return nil, 0, err
	}
	if !hasLocal {
		if r.source == nil {
			return nil, TotalLoss, common.NewError(common.RegenerationFailed, id.String(), "no local parity and no replica source configured")
		}
		companion, err = r.source.FetchCompanion(ctx, id)
		if err != nil {
			return nil, TotalLoss, common.NewError(common.RegenerationFailed, id.String(), "fetch companion: "+err.Error())
		}
	}

	dataShards := len(companion.DataShards)
	parityShardsCount := len(companion.ParityShards)
	shards := companion.AllShards()

	corrupted := make([]bool, len(shards))
	var missing []int
	for i, s := range shards {
		if len(s) == 0 || !companion.VerifyShard(i, s) {
			corrupted[i] = true
			shards[i] = nil
			missing = append(missing, i)
		}
	}
	class := Classify(corrupted, hasLocal)

	for attempt := 0; attempt < maxRegenAttempts; attempt++ {
		survivors := 0
		for _, s := range shards {
			if len(s) > 0 {
				survivors++
			}
		}

		if survivors < dataShards {
			if r.source == nil {
				return nil, class, common.NewError(common.RegenerationFailed, id.String(), "insufficient surviving shards and no replica source configured")
			}
			wanted := missingIndices(shards)
			fetched, err := r.source.FetchShards(ctx, id, wanted, e.ReplicationFactor)
			if err != nil {
				return nil, class, common.NewError(common.RegenerationFailed, id.String(), "fetch shards: "+err.Error())
			}
			for idx, shard := range fetched {
				if idx >= 0 && idx < len(shards) {
					shards[idx] = shard
				}
			}
			survivors = 0
			for _, s := range shards {
				if len(s) > 0 {
					survivors++
				}
			}
			if survivors < dataShards {
				return nil, class, common.NewError(common.RegenerationFailed, id.String(), "fewer than data_shards survived after contacting replicas")
			}
		}

		recovered, err := parity.Decode(shards, dataShards, parityShardsCount, len(e.Content))
		if err != nil {
			return nil, class, common.NewError(common.RegenerationFailed, id.String(), "decode: "+err.Error())
		}

		if verifyRecovered(id, recovered, uint32(dataShards), companion.Binding) {
			return recovered, class, nil
		}

		// Step 4: the recovered content doesn't hash back to what the
		// companion committed to. Discard whatever we just fetched and try
		// a different combination of sources before escalating.
		for _, idx := range missing {
			shards[idx] = nil
		}
	}

	return nil, class, common.NewError(common.RegenerationFailed, id.String(), "recovered content did not verify after retrying with alternate sources")
}

func missingIndices(shards [][]byte) []int {
	var out []int
	for i, s := range shards {
		if len(s) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// verifyRecovered checks recovered content against the companion's binding
// by regenerating a companion from it and comparing bindings, rather than
// against the entry's own stored content: the point of regeneration is to
// repair a companion whose shards decayed independently of the entry record
// (spec.md §4.6 step 4).
func verifyRecovered(id entry.ID, recovered []byte, replicationFactor uint32, wantBinding [32]byte) bool {
	check, err := parity.Generate(id, recovered, replicationFactor)
	if err != nil {
		return false
	}
	return check.Binding == wantBinding
}
