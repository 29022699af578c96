// Package consensus implements anchor selection and finality over a
// gossip.History: the predicate that promotes an ordinary entry to an
// anchor, the finality-depth check, and the gate deciding which operations
// require explicit attestation rather than virtual voting alone
// (spec.md §4.4).
package consensus

import (
	"sync"
	"time"

	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/gossip"
	"github.com/KazeONGUENE/rope/src/peers"
)

// DefaultAnchorInterval is the default minimum time between anchors
// (spec.md §4.4).
const DefaultAnchorInterval = 4200 * time.Millisecond

// DefaultFinalityDepth is the default number of enclosing anchors required
// for finality (spec.md §4.4).
const DefaultFinalityDepth = 3

// AnchorRecord is one promoted anchor: the entry id, the gossip event that
// first announced it (used for strongly-sees lookups), its round, and when
// it was promoted.
type AnchorRecord struct {
	ID         entry.ID
	Event      gossip.EventID
	Round      int
	PromotedAt time.Time
}

// Engine tracks anchor promotion and finality over a single gossip.History
// and validator set.
type Engine struct {
	mu sync.Mutex

	interval      time.Duration
	finalityDepth int

	history *gossip.History
	peerSet *peers.PeerSet

	entryEvent map[entry.ID]gossip.EventID
	anchors    []AnchorRecord

	lastAnchorAt time.Time
}

// NewEngine creates an anchor/finality Engine. interval <= 0 and
// finalityDepth <= 0 fall back to DefaultAnchorInterval/DefaultFinalityDepth.
func NewEngine(history *gossip.History, peerSet *peers.PeerSet, interval time.Duration, finalityDepth int) *Engine {
	if interval <= 0 {
		interval = DefaultAnchorInterval
	}
	if finalityDepth <= 0 {
		finalityDepth = DefaultFinalityDepth
	}
	return &Engine{
		interval:      interval,
		finalityDepth: finalityDepth,
		history:       history,
		peerSet:       peerSet,
		entryEvent:    make(map[entry.ID]gossip.EventID),
	}
}

// RecordEntryEvent associates an admitted entry with the gossip event that
// first announced it, the link anchor selection and finality need between
// the entry DAG (spec.md §4.2) and the gossip event DAG (spec.md §4.3).
func (c *Engine) RecordEntryEvent(id entry.ID, ev gossip.EventID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entryEvent[id]; !ok {
		c.entryEvent[id] = ev
	}
}

func (c *Engine) lastAnchorLocked() (AnchorRecord, bool) {
	if len(c.anchors) == 0 {
		return AnchorRecord{}, false
	}
	return c.anchors[len(c.anchors)-1], true
}

// LastAnchor returns the most recently promoted anchor, if any.
func (c *Engine) LastAnchor() (AnchorRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAnchorLocked()
}

// Anchors returns every anchor promoted so far, oldest first.
func (c *Engine) Anchors() []AnchorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AnchorRecord, len(c.anchors))
	copy(out, c.anchors)
	return out
}

// TryPromote evaluates the anchor predicate against candidates (typically
// every entry admitted since the last anchor) at time now, and promotes the
// winning candidate if the predicate holds (spec.md §4.4):
//  1. time since the previous anchor >= interval,
//  2. the candidate strongly-sees the previous anchor,
//  3. the candidate's round exceeds the previous anchor's round.
// Ties among qualifying candidates are broken by smallest id. The very
// first anchor (no previous anchor exists) only needs the time check.
func (c *Engine) TryPromote(now time.Time, candidates []entry.ID) (entry.ID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastAnchorAt.IsZero() && now.Sub(c.lastAnchorAt) < c.interval {
		return entry.ID{}, false, nil
	}

	prev, hasPrev := c.lastAnchorLocked()

	var winners []entry.ID
	for _, cand := range candidates {
		ev, ok := c.entryEvent[cand]
		if !ok {
			continue
		}
		if hasPrev {
			ss, err := c.history.StronglySees(ev, prev.Event)
			if err != nil || !ss {
				continue
			}
			round, err := c.history.Round(ev)
			if err != nil || round <= prev.Round {
				continue
			}
		}
		winners = append(winners, cand)
	}

	if len(winners) == 0 {
		return entry.ID{}, false, nil
	}

	winner := winners[0]
	for _, w := range winners[1:] {
		winner = gossip.TieBreak(winner, w)
	}

	round, err := c.history.Round(c.entryEvent[winner])
	if err != nil {
		return entry.ID{}, false, err
	}

	rec := AnchorRecord{ID: winner, Event: c.entryEvent[winner], Round: round, PromotedAt: now}
	c.anchors = append(c.anchors, rec)
	c.lastAnchorAt = now
	return winner, true, nil
}

// IsFinal reports whether entry id is final: strongly-seen by at least
// FinalityDepth anchors, each of which is itself strongly-seen by a
// supermajority of validators (spec.md §4.4). "Strongly-seen by a
// supermajority" is witnessed here by the anchor's own consensus vote
// having decided — ConsensusVote already requires a strict supermajority
// of validators to agree (spec.md §4.3), so a decided vote on the anchor is
// exactly that condition.
func (c *Engine) IsFinal(id entry.ID) (bool, error) {
	c.mu.Lock()
	anchors := make([]AnchorRecord, len(c.anchors))
	copy(anchors, c.anchors)
	eEv, known := c.entryEvent[id]
	c.mu.Unlock()

	if !known {
		return false, nil
	}

	count := 0
	for _, a := range anchors {
		ss, err := c.history.StronglySees(a.Event, eEv)
		if err != nil {
			continue
		}
		if !ss {
			continue
		}
		if _, decided := c.history.ConsensusVote(a.ID); !decided {
			continue
		}
		count++
	}
	return count >= c.finalityDepth, nil
}
