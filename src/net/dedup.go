package net

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

const (
	defaultDedupTTL = 5 * time.Second
	dedupCleanupInterval = 1 * time.Second
)

// dedup suppresses re-delivery of a payload this node has already seen
// recently, the same fixed-TTL scheme BluePods uses to keep a broadcast
// storm from re-triggering handlers on every relay hop.
type dedup struct {
	mu   sync.RWMutex
	seen map[[32]byte]int64
	ttl  int64

	stop chan struct{}
	wg   sync.WaitGroup
}

func newDedup() *dedup {
	d := &dedup{
		seen: make(map[[32]byte]int64),
		ttl:  int64(defaultDedupTTL),
		stop: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.cleanupLoop()
	return d
}

// Check reports whether payload is new, recording it if so.
func (d *dedup) Check(payload []byte) bool {
	hash := blake3.Sum256(payload)
	now := time.Now().UnixNano()

	d.mu.RLock()
	ts, ok := d.seen[hash]
	d.mu.RUnlock()
	if ok && now-ts < d.ttl {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.seen[hash]; ok && now-ts < d.ttl {
		return false
	}
	d.seen[hash] = now
	return true
}

func (d *dedup) cleanupLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(dedupCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.cleanup()
		case <-d.stop:
			return
		}
	}
}

func (d *dedup) cleanup() {
	now := time.Now().UnixNano()
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, ts := range d.seen {
		if now-ts >= d.ttl {
			delete(d.seen, h)
		}
	}
}

func (d *dedup) Close() {
	close(d.stop)
	d.wg.Wait()
}
