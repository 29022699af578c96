// Package graph implements the authoritative, concurrency-safe DAG of
// entries plus their parity companions (spec.md §4.2).
package graph

import (
	"fmt"
	"sync"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/parity"
	"github.com/KazeONGUENE/rope/src/peers"
)

// Column prefixes, one per spec.md §6 persisted-state column.
var (
	colEntries       = []byte("entries/")
	colParents       = []byte("parents/")
	colChildren      = []byte("children/")
	colParity        = []byte("parity/")
	colAttestations  = []byte("attestations/")
	colAnchors       = []byte("anchors/")
	colErasures      = []byte("erasures/")
	colClocks        = []byte("clocks/")
	colTombstones    = []byte("tombstones/")
	colMeta          = []byte("meta/")

	genesisMetaKey = append(append([]byte{}, colMeta...), "genesis"...)
)

// EpochSource lets the graph check oes_epoch against the live OES window
// without importing the oes package (which itself may want to admit
// entries through the graph). nil means "accept any epoch" — used in tests
// and before OES is wired up.
type EpochSource interface {
	// CurrentEpoch returns the network's current OES generation.
	CurrentEpoch() uint64
	// Window returns the acceptance window width W (spec.md §4.5).
	Window() uint64
}

// PublicKeyDecoder resolves an entry's raw Creator bytes to a verifiable
// hybrid public key. Entries store the actual marshalled public key, so the
// default decoder just unmarshals it; this indirection exists so a future
// identity scheme (e.g. creator ids resolved through a registry) can be
// substituted without changing Graph's signature.
type PublicKeyDecoder func(creator []byte) (*crypto.HybridPublicKey, error)

// Graph is the in-memory-plus-backend authoritative DAG. Many concurrent
// readers, writers serialized (spec.md §5): signature verification happens
// before the lock is acquired, and the lock is held only across the
// admission itself. Parity encoding is part of that admission, so it runs
// while the lock is held.
type Graph struct {
	mu      sync.RWMutex
	backend Backend

	epochSource EpochSource
	decodeKey   PublicKeyDecoder

	onAdmit []func(*entry.Entry)

	// quarantine holds entries whose parents are not yet resolved, keyed
	// by the missing parent id, per spec.md §4.2 ParentMissing handling.
	quarantine map[entry.ID][]*entry.Entry
}

// New creates a Graph over the given backend.
func New(backend Backend, decodeKey PublicKeyDecoder) *Graph {
	return &Graph{
		backend:    backend,
		decodeKey:  decodeKey,
		quarantine: make(map[entry.ID][]*entry.Entry),
	}
}

// SetEpochSource wires the OES epoch window check. Optional.
func (g *Graph) SetEpochSource(src EpochSource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.epochSource = src
}

// OnAdmit registers a callback invoked after a successful Admit, the hook
// src/node uses to publish admission events to gossip (spec.md §4.2: "on
// success emits an admission event").
func (g *Graph) OnAdmit(fn func(*entry.Entry)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onAdmit = append(g.onAdmit, fn)
}

func entryKey(id entry.ID) []byte {
	return append(append([]byte{}, colEntries...), id[:]...)
}

func parentsKey(id entry.ID) []byte {
	return append(append([]byte{}, colParents...), id[:]...)
}

func childrenKey(id entry.ID) []byte {
	return append(append([]byte{}, colChildren...), id[:]...)
}

func parityKey(id entry.ID) []byte {
	return append(append([]byte{}, colParity...), id[:]...)
}

func clockKey(creator peers.NodeID) []byte {
	return append(append([]byte{}, colClocks...), creator[:]...)
}

func tombstoneKey(id entry.ID) []byte {
	return append(append([]byte{}, colTombstones...), id[:]...)
}

func tombstoneRecordKey(id entry.ID) []byte {
	return append(tombstoneKey(id), '/', 'r')
}

// Admit validates and inserts an entry, per spec.md §4.2. Admission is
// atomic: a cancelled or failed admit leaves no partial state (spec.md §5).
func (g *Graph) Admit(e *entry.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	pub, err := g.decodeKey(e.Creator)
	if err != nil {
		return common.NewError(common.InvalidSignature, e.ID().String(), "cannot decode creator key: "+err.Error())
	}
	if !e.Verify(pub) {
		return common.NewError(common.InvalidSignature, e.ID().String(), "hybrid signature verification failed")
	}

	if err := g.checkEpochWindow(e); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.admitLocked(e)
}

func (g *Graph) checkEpochWindow(e *entry.Entry) error {
	if g.epochSourceSnapshot() == nil {
		return nil
	}
	src := g.epochSourceSnapshot()
	current := src.CurrentEpoch()
	w := src.Window()
	if e.OESEpoch > current {
		return common.NewError(common.EpochOutOfWindow, e.ID().String(), fmt.Sprintf("epoch %d exceeds current %d", e.OESEpoch, current))
	}
	if current-e.OESEpoch > w {
		return common.NewError(common.EpochOutOfWindow, e.ID().String(), fmt.Sprintf("epoch %d outside window [%d,%d]", e.OESEpoch, current-w, current))
	}
	return nil
}

func (g *Graph) epochSourceSnapshot() EpochSource {
	return g.epochSource
}

// admitLocked performs the structural graph checks and the batched write.
// Caller holds g.mu.
func (g *Graph) admitLocked(e *entry.Entry) error {
	id := e.ID()

	if tomb, ok, _ := g.backend.Get(tombstoneKey(id)); ok && len(tomb) > 0 {
		return common.NewError(common.Erased, id.String(), "id has an erasure record")
	}

	if _, ok, _ := g.backend.Get(entryKey(id)); ok {
		return nil // idempotent double-admit (spec.md §8)
	}

	isGenesis := false
	if len(e.Parents) > 0 {
		if hasMissing, miss := g.anyMissingParent(e.Parents); hasMissing {
			g.quarantine[miss] = append(g.quarantine[miss], e)
			return common.NewError(common.ParentMissing, id.String(), "missing parent "+miss.String())
		}
		if err := g.checkClockMonotonicity(e); err != nil {
			return err
		}
		if g.ancestryHasCycle(id, e.Parents) {
			return common.NewError(common.CircularParentage, id.String(), "cycle detected in ancestry")
		}
	} else {
		if _, ok, _ := g.backend.Get(genesisMetaKey); ok {
			return common.NewError(common.ParentRequired, id.String(), "only the genesis entry may have empty parents")
		}
		isGenesis = true
	}

	if err := g.checkCreatorClock(e); err != nil {
		return err
	}

	companion, err := parity.Generate(id, e.Content, e.ReplicationFactor)
	if err != nil {
		return fmt.Errorf("graph: generate parity: %w", err)
	}

	batch := g.backend.NewBatch()
	encoded, err := encodeEntry(e)
	if err != nil {
		return err
	}
	batch.Put(entryKey(id), encoded)
	batch.Put(parentsKey(id), encodeParentList(e.Parents))
	for _, p := range e.Parents {
		batch.Put(append(childrenKey(p), id[:]...), []byte{1})
	}
	batch.Put(parityKey(id), encodeCompanion(companion))
	batch.Put(clockKey(e.Clock.Creator), encodeCounter(e.Clock.Counter))
	if isGenesis {
		batch.Put(genesisMetaKey, id[:])
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("graph: commit: %w", err)
	}

	g.promoteQuarantined(id)

	for _, fn := range g.onAdmit {
		fn(e)
	}
	return nil
}

func (g *Graph) anyMissingParent(parentIDs []entry.ID) (bool, entry.ID) {
	for _, p := range parentIDs {
		if ok, _ := g.backend.Has(entryKey(p)); !ok {
			return true, p
		}
	}
	return false, entry.ID{}
}

// checkClockMonotonicity enforces spec.md §3: clock.counter strictly
// exceeds the same creator's counter on every parent.
func (g *Graph) checkClockMonotonicity(e *entry.Entry) error {
	for _, pid := range e.Parents {
		parent, ok, err := g.getLocked(pid)
		if err != nil || !ok {
			continue
		}
		if parent.Clock.Creator == e.Clock.Creator && parent.Clock.Counter >= e.Clock.Counter {
			return common.NewError(common.ClockRegression, e.ID().String(), "counter does not exceed parent's")
		}
	}
	return nil
}

// checkCreatorClock enforces strict per-creator counter increase across the
// whole admitted set, not just against this entry's declared parents
// (spec.md §5: "observers see a total order per creator").
func (g *Graph) checkCreatorClock(e *entry.Entry) error {
	last, ok, err := g.backend.Get(clockKey(e.Clock.Creator))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	lastCounter := decodeCounter(last)
	if e.Clock.Counter <= lastCounter {
		return common.NewError(common.ClockRegression, e.ID().String(), "counter did not strictly increase for creator")
	}
	return nil
}

// ancestryHasCycle walks the transitive parentage of id looking for id
// itself, bounded by the parents just declared (a full graph cycle would
// have been caught at an ancestor's admission time, since admission is
// monotonic and no entry can be un-admitted).
func (g *Graph) ancestryHasCycle(id entry.ID, parents []entry.ID) bool {
	seen := make(map[entry.ID]bool)
	stack := append([]entry.ID{}, parents...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == id {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		ps, _ := g.parentsLocked(cur)
		stack = append(stack, ps...)
	}
	return false
}

// promoteQuarantined admits any quarantined entries that were waiting on id.
func (g *Graph) promoteQuarantined(id entry.ID) {
	waiting, ok := g.quarantine[id]
	if !ok {
		return
	}
	delete(g.quarantine, id)
	for _, e := range waiting {
		_ = g.admitLocked(e)
	}
}

// Get returns an admitted entry by id.
func (g *Graph) Get(id entry.ID) (*entry.Entry, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.getLocked(id)
}

func (g *Graph) getLocked(id entry.ID) (*entry.Entry, bool, error) {
	raw, ok, err := g.backend.Get(entryKey(id))
	if err != nil || !ok {
		return nil, ok, err
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return nil, false, err
	}
	if tomb, ok, _ := g.backend.Get(tombstoneKey(id)); ok {
		e.Content = tomb
	}
	return e, true, nil
}

// Has reports whether id is admitted.
func (g *Graph) Has(id entry.ID) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.backend.Has(entryKey(id))
}

// Parents returns id's declared parents.
func (g *Graph) Parents(id entry.ID) ([]entry.ID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.parentsLocked(id)
}

func (g *Graph) parentsLocked(id entry.ID) ([]entry.ID, error) {
	raw, ok, err := g.backend.Get(parentsKey(id))
	if err != nil || !ok {
		return nil, err
	}
	return decodeParentList(raw)
}

// Children returns the ids of entries that declared id as a parent.
func (g *Graph) Children(id entry.ID) ([]entry.ID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []entry.ID
	prefix := childrenKey(id)
	err := g.backend.Iterate(prefix, func(key, _ []byte) bool {
		var cid entry.ID
		copy(cid[:], key[len(prefix):])
		out = append(out, cid)
		return true
	})
	return out, err
}

// Parity returns id's parity companion.
func (g *Graph) Parity(id entry.ID) (*parity.Companion, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	raw, ok, err := g.backend.Get(parityKey(id))
	if err != nil || !ok {
		return nil, ok, err
	}
	c, err := decodeCompanion(raw)
	return c, err == nil, err
}

// Tombstone replaces id's content with a tombstone marker and destroys its
// parity companion (spec.md §3, §4.7 step 4). The erasure record id is
// retained for the anti-resurrection check (spec.md §4.7 failure semantics).
func (g *Graph) Tombstone(id entry.ID, erasureRecordID entry.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok, _ := g.backend.Get(entryKey(id)); !ok {
		return common.NewError(common.NotFound, id.String(), "cannot tombstone unknown entry")
	}

	batch := g.backend.NewBatch()
	batch.Put(tombstoneKey(id), entry.Tombstone())
	batch.Put(tombstoneRecordKey(id), erasureRecordID[:])
	batch.Delete(parityKey(id))
	return batch.Commit()
}

// IsTombstoned reports whether id has been erased.
func (g *Graph) IsTombstoned(id entry.ID) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.backend.Has(tombstoneKey(id))
}

// ErasureRecordFor returns the id of the erasure record that tombstoned
// target, if any.
func (g *Graph) ErasureRecordFor(target entry.ID) (entry.ID, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	raw, ok, err := g.backend.Get(tombstoneRecordKey(target))
	if err != nil || !ok {
		return entry.ID{}, false, err
	}
	var rid entry.ID
	copy(rid[:], raw)
	return rid, true, nil
}

// LastCounter returns creator's most recently admitted clock counter, for a
// caller that needs to mint the next strictly-increasing value (spec.md §5).
func (g *Graph) LastCounter(creator peers.NodeID) (uint64, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	raw, ok, err := g.backend.Get(clockKey(creator))
	if err != nil || !ok {
		return 0, false, err
	}
	return decodeCounter(raw), true, nil
}
