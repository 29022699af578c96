package graph

import (
	"bytes"

	"github.com/cockroachdb/pebble"
)

// PebbleBackend is the on-disk Backend, column-prefix keyed the same way as
// the in-memory one, backed by a Pebble LSM tree (grounded on BluePods's
// internal/storage/storage.go: NoSync writes buffered between periodic WAL
// syncs, a Pebble batch for atomic multi-key commits).
type PebbleBackend struct {
	db *pebble.DB
}

// OpenPebbleBackend opens (or creates) a Pebble-backed Backend at path.
func OpenPebbleBackend(path string) (*PebbleBackend, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(32 << 20),
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 2,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &PebbleBackend{db: db}, nil
}

func (b *PebbleBackend) Put(key, value []byte) error {
	return b.db.Set(key, value, pebble.NoSync)
}

func (b *PebbleBackend) Get(key []byte) ([]byte, bool, error) {
	v, closer, err := b.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (b *PebbleBackend) Has(key []byte) (bool, error) {
	_, ok, err := b.Get(key)
	return ok, err
}

func (b *PebbleBackend) Delete(key []byte) error {
	return b.db.Delete(key, pebble.NoSync)
}

func (b *PebbleBackend) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	upper := prefixUpperBound(prefix)
	iter, err := b.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		v, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		key := append([]byte(nil), iter.Key()...)
		val := append([]byte(nil), v...)
		if !fn(key, val) {
			break
		}
	}
	return nil
}

// prefixUpperBound returns the smallest key strictly greater than every key
// with the given prefix, so range scans by creator/clock (spec.md §6) don't
// spill past their column.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded
}

func (b *PebbleBackend) NewBatch() Batch {
	return &pebbleBatch{batch: b.db.NewBatch()}
}

func (b *PebbleBackend) Close() error {
	return b.db.Close()
}

type pebbleBatch struct {
	batch *pebble.Batch
}

func (bt *pebbleBatch) Put(key, value []byte) {
	_ = bt.batch.Set(key, value, nil)
}

func (bt *pebbleBatch) Delete(key []byte) {
	_ = bt.batch.Delete(key, nil)
}

func (bt *pebbleBatch) Commit() error {
	defer bt.batch.Close()
	return bt.batch.Commit(pebble.NoSync)
}
