package regen

import (
	"context"
	"testing"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/parity"
)

type fakeStore struct {
	entries    map[entry.ID]*entry.Entry
	companions map[entry.ID]*parity.Companion
	tombstoned map[entry.ID]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries:    make(map[entry.ID]*entry.Entry),
		companions: make(map[entry.ID]*parity.Companion),
		tombstoned: make(map[entry.ID]bool),
	}
}

func (f *fakeStore) Get(id entry.ID) (*entry.Entry, bool, error) {
	e, ok := f.entries[id]
	return e, ok, nil
}

func (f *fakeStore) Parity(id entry.ID) (*parity.Companion, bool, error) {
	c, ok := f.companions[id]
	return c, ok, nil
}

func (f *fakeStore) IsTombstoned(id entry.ID) (bool, error) {
	return f.tombstoned[id], nil
}

type fakeSource struct {
	companion *parity.Companion
	shards    map[int][]byte
	fetchErr  error
}

func (f *fakeSource) FetchCompanion(ctx context.Context, id entry.ID) (*parity.Companion, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.companion, nil
}

func (f *fakeSource) FetchShards(ctx context.Context, id entry.ID, indices []int, replicationFactor uint32) (map[int][]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make(map[int][]byte)
	for _, idx := range indices {
		if s, ok := f.shards[idx]; ok {
			out[idx] = s
		}
	}
	return out, nil
}

func newSignedEntry(t *testing.T, content []byte, replicationFactor uint32) *entry.Entry {
	t.Helper()
	kp, err := crypto.HybridKeyPairFromSeed([]byte("regen-test-seed"))
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	e, err := entry.NewBuilder().
		Content(content).
		ReplicationFactor(replicationFactor).
		Build(kp)
	if err != nil {
		t.Fatalf("build entry: %v", err)
	}
	return e
}

func seed(t *testing.T, store *fakeStore, content []byte, replicationFactor uint32) (*entry.Entry, *parity.Companion) {
	t.Helper()
	e := newSignedEntry(t, content, replicationFactor)
	companion, err := parity.Generate(e.ID(), e.Content, e.ReplicationFactor)
	if err != nil {
		t.Fatalf("generate companion: %v", err)
	}
	store.entries[e.ID()] = e
	store.companions[e.ID()] = companion
	return e, companion
}

func TestRegenerateBlockedWhenTombstoned(t *testing.T) {
	store := newFakeStore()
	e, _ := seed(t, store, []byte("hello world"), 5)
	store.tombstoned[e.ID()] = true

	r := New(store, nil)
	_, _, err := r.Regenerate(context.Background(), e.ID())
	if !common.Is(err, common.Erased) {
		t.Fatalf("expected Erased, got %v", err)
	}
}

func TestRegenerateRepairsSingleCorruptShardLocally(t *testing.T) {
	store := newFakeStore()
	content := make([]byte, parity.ShardSize*3)
	for i := range content {
		content[i] = byte(i)
	}
	e, companion := seed(t, store, content, 5)

	// corrupt exactly one shard.
	companion.DataShards[1] = make([]byte, len(companion.DataShards[1]))

	r := New(store, nil)
	recovered, class, err := r.Regenerate(context.Background(), e.ID())
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if class != SingleAtomCorruption {
		t.Fatalf("expected SingleAtomCorruption, got %v", class)
	}
	if string(recovered) != string(content) {
		t.Fatalf("recovered content does not match original")
	}
}

func TestRegenerateContactsReplicasWhenLocalShardsInsufficient(t *testing.T) {
	store := newFakeStore()
	content := make([]byte, parity.ShardSize*5)
	for i := range content {
		content[i] = byte(i * 3)
	}
	e, companion := seed(t, store, content, 5)

	all := companion.AllShards()
	// wipe every data shard but one, well past what the two parity
	// shards alone can reconstruct (data=5, parity=2).
	lost := map[int][]byte{}
	for i := 0; i < 4; i++ {
		lost[i] = append([]byte{}, all[i]...)
		companion.DataShards[i] = make([]byte, len(companion.DataShards[i]))
	}

	src := &fakeSource{shards: lost}
	r := New(store, src)
	recovered, class, err := r.Regenerate(context.Background(), e.ID())
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if class != SevereCorruption {
		t.Fatalf("expected SevereCorruption, got %v", class)
	}
	if string(recovered) != string(content) {
		t.Fatalf("recovered content does not match original")
	}
}

func TestRegenerateFailsWithoutEnoughSurvivingShards(t *testing.T) {
	store := newFakeStore()
	content := make([]byte, parity.ShardSize*5)
	for i := range content {
		content[i] = byte(i + 1)
	}
	e, companion := seed(t, store, content, 5)

	for i := 0; i < len(companion.DataShards); i++ {
		companion.DataShards[i] = make([]byte, len(companion.DataShards[i]))
	}
	for i := 0; i < len(companion.ParityShards); i++ {
		companion.ParityShards[i] = make([]byte, len(companion.ParityShards[i]))
	}

	r := New(store, nil)
	_, _, err := r.Regenerate(context.Background(), e.ID())
	if err == nil {
		t.Fatalf("expected regeneration to fail with everything corrupted and no replica source")
	}
}

func TestRegenerateTotalLossFromReplicaCompanion(t *testing.T) {
	store := newFakeStore()
	content := []byte("total loss recovers from a replica's whole companion")
	e := newSignedEntry(t, content, 5)
	companion, err := parity.Generate(e.ID(), e.Content, e.ReplicationFactor)
	if err != nil {
		t.Fatalf("generate companion: %v", err)
	}
	store.entries[e.ID()] = e
	// deliberately no local companion.

	src := &fakeSource{companion: companion}
	r := New(store, src)
	recovered, class, err := r.Regenerate(context.Background(), e.ID())
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if class != TotalLoss {
		t.Fatalf("expected TotalLoss, got %v", class)
	}
	if string(recovered) != string(content) {
		t.Fatalf("recovered content does not match original")
	}
}
