package graph

// Backend is the pluggable storage interface the Graph is built over
// (spec.md §4.2, §6). The core ships an in-memory backend (InMemBackend)
// and defines here the contract an on-disk backend must honor: idempotent
// puts, atomic batches, and range scans by creator/clock.
//
// Keys are opaque byte strings; the Graph owns key-space layout (the
// column-prefix scheme of spec.md §6: "entries", "parents", "parity",
// "attestations", "anchors", "oes", "erasures").
type Backend interface {
	// Put writes key -> value. Put is idempotent: writing the same
	// key/value pair twice has the same effect as writing it once.
	Put(key, value []byte) error
	// Get returns the value for key, or (nil, false) if absent.
	Get(key []byte) ([]byte, bool, error)
	// Has reports whether key is present without reading its value.
	Has(key []byte) (bool, error)
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(key []byte) error
	// Iterate calls fn for every key with the given prefix, in ascending
	// key order, until fn returns false or all matching keys are visited.
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
	// NewBatch starts an atomic batch: all Puts/Deletes issued against it
	// become visible together on Commit, or not at all if Commit is never
	// called (spec.md §6 atomicity boundary).
	NewBatch() Batch
	// Close releases backend resources.
	Close() error
}

// Batch accumulates writes for atomic commit.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Commit() error
}
