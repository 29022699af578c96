package node

import "sync"

// Metrics is the plain, mutex-guarded counter set the original node
// crate's metrics.rs exposed over a Prometheus registry. No example in the
// retrieved pack imports a Prometheus client, so this stays a small
// in-process struct rather than reaching for an unwired dependency; a
// front-end or indexer collaborator (spec.md §6) can poll Snapshot.
type Metrics struct {
	mu sync.Mutex

	entriesAdmitted      uint64
	anchorsProduced      uint64
	oesGenerations       uint64
	erasuresApplied      uint64
	regenerationSuccess  uint64
	regenerationFailures uint64
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	EntriesAdmitted      uint64
	AnchorsProduced      uint64
	OESGenerations       uint64
	ErasuresApplied      uint64
	RegenerationSuccess  uint64
	RegenerationFailures uint64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordEntryAdmitted() {
	m.mu.Lock()
	m.entriesAdmitted++
	m.mu.Unlock()
}

func (m *Metrics) recordAnchorProduced() {
	m.mu.Lock()
	m.anchorsProduced++
	m.mu.Unlock()
}

func (m *Metrics) recordOESGeneration() {
	m.mu.Lock()
	m.oesGenerations++
	m.mu.Unlock()
}

func (m *Metrics) recordErasureApplied() {
	m.mu.Lock()
	m.erasuresApplied++
	m.mu.Unlock()
}

func (m *Metrics) recordRegeneration(ok bool) {
	m.mu.Lock()
	if ok {
		m.regenerationSuccess++
	} else {
		m.regenerationFailures++
	}
	m.mu.Unlock()
}

// Snapshot returns a copy of every counter's current value.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		EntriesAdmitted:      m.entriesAdmitted,
		AnchorsProduced:      m.anchorsProduced,
		OESGenerations:       m.oesGenerations,
		ErasuresApplied:      m.erasuresApplied,
		RegenerationSuccess:  m.regenerationSuccess,
		RegenerationFailures: m.regenerationFailures,
	}
}
