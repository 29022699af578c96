package node

import (
	"context"
	"time"

	"github.com/KazeONGUENE/rope/src/consensus"
	"github.com/KazeONGUENE/rope/src/entry"
)

const maxPendingCandidates = 4096

// anchorLoop periodically evaluates the anchor predicate over every entry
// admitted since the last check (spec.md §4.4), and on promotion advances
// the OES anchor cadence (spec.md §4.5).
func (n *Node) anchorLoop() {
	defer n.wg.Done()

	interval := n.cfg.AnchorInterval
	if interval <= 0 {
		interval = consensus.DefaultAnchorInterval
	}
	// Poll at a finer grain than the anchor interval itself so a promotion
	// is not delayed by a whole extra interval once its conditions are met.
	tickInterval := interval / 4
	if tickInterval <= 0 {
		tickInterval = 50 * time.Millisecond
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case now := <-ticker.C:
			n.tryPromoteAnchor(now)
		}
	}
}

func (n *Node) tryPromoteAnchor(now time.Time) {
	n.pendingMu.Lock()
	candidates := append([]entry.ID(nil), n.pendingCandidates...)
	n.pendingMu.Unlock()

	if len(candidates) == 0 {
		return
	}

	winner, promoted, err := n.consensus.TryPromote(now, candidates)
	if err != nil {
		n.logger.WithError(err).Debug("anchor promotion check failed")
		return
	}
	if !promoted {
		if len(candidates) > maxPendingCandidates {
			n.pendingMu.Lock()
			if len(n.pendingCandidates) > maxPendingCandidates {
				n.pendingCandidates = n.pendingCandidates[len(n.pendingCandidates)-maxPendingCandidates:]
			}
			n.pendingMu.Unlock()
		}
		return
	}

	n.pendingMu.Lock()
	n.pendingCandidates = removeID(n.pendingCandidates, winner)
	n.pendingMu.Unlock()

	n.metrics.recordAnchorProduced()
	n.logger.WithField("anchor", winner.String()).Info("promoted anchor")
	n.onAnchorPromoted()
}

func removeID(ids []entry.ID, target entry.ID) []entry.ID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// regenLoop drains repair requests queued by Repair, reconstructing content
// from surviving parity shards and replicas (spec.md §4.6). It never
// re-persists a repaired companion: graph.Graph exposes no in-place parity
// rewrite, so repair is served on demand rather than proactively re-encoded
// into storage.
func (n *Node) regenLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case id := <-n.repairRequests():
			ctx, cancel := context.WithTimeout(n.ctx, 30*time.Second)
			_, _, err := n.regenerator.Regenerate(ctx, id)
			cancel()
			n.metrics.recordRegeneration(err == nil)
			if err != nil {
				n.logger.WithError(err).WithField("id", id.String()).Debug("regeneration failed")
			}
		}
	}
}

func (n *Node) repairRequests() <-chan entry.ID {
	n.repairOnce.Do(func() {
		n.repairCh = make(chan entry.ID, 64)
	})
	return n.repairCh
}

// Repair queues id for background reconstruction and returns immediately;
// use RepairNow to block for the result instead.
func (n *Node) Repair(id entry.ID) {
	n.repairRequests()
	select {
	case n.repairCh <- id:
	default:
		n.logger.WithField("id", id.String()).Debug("repair queue full, dropping request")
	}
}

// RepairNow reconstructs id's content synchronously, for callers (e.g. a
// read path that hit a corrupted local shard) that need the bytes rather
// than just triggering background repair.
func (n *Node) RepairNow(ctx context.Context, id entry.ID) ([]byte, error) {
	content, _, err := n.regenerator.Regenerate(ctx, id)
	n.metrics.recordRegeneration(err == nil)
	return content, err
}
