package graph

import (
	"bytes"
	"sort"
	"sync"
)

// InMemBackend is the Backend the core ships for tests and single-process
// deployments (spec.md §4.2: "the core ships an in-memory backend").
type InMemBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemBackend creates an empty in-memory Backend.
func NewInMemBackend() *InMemBackend {
	return &InMemBackend{data: make(map[string][]byte)}
}

func (b *InMemBackend) Put(key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	b.data[string(key)] = cp
	return nil
}

func (b *InMemBackend) Get(key []byte) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (b *InMemBackend) Has(key []byte) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.data[string(key)]
	return ok, nil
}

func (b *InMemBackend) Delete(key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, string(key))
	return nil
}

func (b *InMemBackend) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	b.mu.RLock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = b.data[k]
	}
	b.mu.RUnlock()

	for _, k := range keys {
		if !fn([]byte(k), snapshot[k]) {
			break
		}
	}
	return nil
}

func (b *InMemBackend) NewBatch() Batch {
	return &inMemBatch{backend: b}
}

func (b *InMemBackend) Close() error { return nil }

type inMemBatch struct {
	backend *InMemBackend
	puts    []kv
	deletes [][]byte
}

type kv struct {
	key, value []byte
}

func (bt *inMemBatch) Put(key, value []byte) {
	bt.puts = append(bt.puts, kv{key: key, value: value})
}

func (bt *inMemBatch) Delete(key []byte) {
	bt.deletes = append(bt.deletes, key)
}

func (bt *inMemBatch) Commit() error {
	bt.backend.mu.Lock()
	defer bt.backend.mu.Unlock()
	for _, p := range bt.puts {
		cp := make([]byte, len(p.value))
		copy(cp, p.value)
		bt.backend.data[string(p.key)] = cp
	}
	for _, d := range bt.deletes {
		delete(bt.backend.data, string(d))
	}
	return nil
}
