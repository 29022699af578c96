package gossip

import (
	"fmt"
	"sync"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/peers"
)

// History is one validator's view of the gossip event DAG: every event it
// has learned (its own and peers'), indexed for can-see, first-learned, and
// strongly-sees lookups (spec.md §4.3). Mirrors babble's Hashgraph, which
// plays the same role over Events-with-transactions.
type History struct {
	mu sync.RWMutex

	peerSet *peers.PeerSet

	events             map[EventID]*GossipEvent
	lastEventByCreator map[peers.NodeID]EventID
	roundWitnesses     map[int][]EventID

	// firstLearned[creator][entryID] is the earliest event of creator whose
	// Entries contains entryID (spec.md §4.3 "First-learned").
	firstLearned map[peers.NodeID]map[entry.ID]EventID

	// referenceCount[entryID] counts gossip events, across every creator,
	// that announce entryID — the "ordering" value of spec.md §4.3's
	// virtual vote.
	referenceCount map[entry.ID]int

	ancestorCache    *common.LRU
	stronglySeeCache *common.LRU
}

type pairKey struct {
	a, b EventID
}

// NewHistory creates an empty History over the given validator set.
func NewHistory(ps *peers.PeerSet, cacheSize int) *History {
	if cacheSize <= 0 {
		cacheSize = 5000
	}
	return &History{
		peerSet:            ps,
		events:             make(map[EventID]*GossipEvent),
		lastEventByCreator: make(map[peers.NodeID]EventID),
		roundWitnesses:     make(map[int][]EventID),
		firstLearned:       make(map[peers.NodeID]map[entry.ID]EventID),
		referenceCount:     make(map[entry.ID]int),
		ancestorCache:      common.NewLRU(cacheSize, nil),
		stronglySeeCache:   common.NewLRU(cacheSize, nil),
	}
}

// PeerSet returns the validator set the history is computed over.
func (h *History) PeerSet() *peers.PeerSet {
	return h.peerSet
}

// Get looks up an event by id.
func (h *History) Get(id EventID) (*GossipEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.events[id]
	return e, ok
}

// LastEvent returns the head of creator's self-parent chain, if any.
func (h *History) LastEvent(creator peers.NodeID) (EventID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.lastEventByCreator[creator]
	return id, ok
}

// Insert admits a new gossip event: it must reference already-known parents
// (self-parent and, if set, other-parent), and its index must continue the
// creator's self-parent chain. Round and witness status are assigned here,
// per spec.md §4.3's round-assignment rule.
func (h *History) Insert(e *GossipEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.events[e.ID()]; ok {
		return nil // idempotent double-insert
	}

	var selfParent, otherParent *GossipEvent
	if !e.SelfParent.IsZero() {
		sp, ok := h.events[e.SelfParent]
		if !ok {
			return common.NewError(common.ParentMissing, e.ID().String(), "self-parent "+e.SelfParent.String()+" unknown")
		}
		selfParent = sp
		if sp.Creator != e.Creator {
			return fmt.Errorf("gossip: self-parent %s has different creator", e.SelfParent)
		}
		if e.Index != sp.Index+1 {
			return fmt.Errorf("gossip: event index %d does not continue self-parent index %d", e.Index, sp.Index)
		}
	} else if e.Index != 0 {
		return fmt.Errorf("gossip: first event for creator must have index 0, got %d", e.Index)
	}

	if !e.OtherParent.IsZero() {
		op, ok := h.events[e.OtherParent]
		if !ok {
			return common.NewError(common.ParentMissing, e.ID().String(), "other-parent "+e.OtherParent.String()+" unknown")
		}
		otherParent = op
	}

	h.computeCoordinates(e, selfParent, otherParent)
	// assignRound evaluates stronglySee(e, w), so e must already be stored
	// and its first-descendant links propagated.
	h.events[e.ID()] = e
	h.propagateFirstDescendant(e)
	h.assignRound(e, selfParent)

	h.lastEventByCreator[e.Creator] = e.ID()
	if e.witness {
		h.roundWitnesses[e.round] = append(h.roundWitnesses[e.round], e.ID())
	}

	for _, eid := range e.Entries {
		h.recordFirstLearned(e.Creator, eid, e.ID())
		h.referenceCount[eid]++
	}

	return nil
}

func (h *History) recordFirstLearned(creator peers.NodeID, eid entry.ID, event EventID) {
	m, ok := h.firstLearned[creator]
	if !ok {
		m = make(map[entry.ID]EventID)
		h.firstLearned[creator] = m
	}
	if _, already := m[eid]; !already {
		m[eid] = event
	}
}

// computeCoordinates derives lastAncestors/firstDescendants for e by merging
// its parents', exactly as babble's initEventCoordinates does.
func (h *History) computeCoordinates(e *GossipEvent, selfParent, otherParent *GossipEvent) {
	e.lastAncestors = make(map[peers.NodeID]Coordinate)
	e.firstDescendants = make(map[peers.NodeID]Coordinate)

	if selfParent != nil {
		for p, c := range selfParent.lastAncestors {
			e.lastAncestors[p] = c
		}
	}
	if otherParent != nil {
		for p, c := range otherParent.lastAncestors {
			if cur, ok := e.lastAncestors[p]; !ok || cur.Index < c.Index {
				e.lastAncestors[p] = c
			}
		}
	}

	e.firstDescendants[e.Creator] = Coordinate{ID: e.ID(), Index: e.Index}
	e.lastAncestors[e.Creator] = Coordinate{ID: e.ID(), Index: e.Index}
}

// propagateFirstDescendant walks back from each of e's last ancestors,
// filling in their firstDescendants[e.Creator] until an event that already
// has one is reached (babble's updateAncestorFirstDescendant).
func (h *History) propagateFirstDescendant(e *GossipEvent) {
	for _, c := range e.lastAncestors {
		cur := c.ID
		for {
			a, ok := h.events[cur]
			if !ok {
				break
			}
			if _, has := a.firstDescendants[e.Creator]; has {
				break
			}
			a.firstDescendants[e.Creator] = Coordinate{ID: e.ID(), Index: e.Index}
			if a.SelfParent.IsZero() {
				break
			}
			cur = a.SelfParent
		}
	}
}

// ancestor reports whether y is an ancestor of x (spec.md §4.3 "can-see"),
// using x's lastAncestors map the way babble's _ancestor does.
func (h *History) ancestor(x, y EventID) (bool, error) {
	if x == y {
		return true, nil
	}
	if c, ok := h.ancestorCache.Get(pairKey{x, y}); ok {
		return c.(bool), nil
	}
	ex, ok := h.events[x]
	if !ok {
		return false, fmt.Errorf("gossip: unknown event %s", x)
	}
	ey, ok := h.events[y]
	if !ok {
		return false, fmt.Errorf("gossip: unknown event %s", y)
	}
	c, ok := ex.lastAncestors[ey.Creator]
	res := ok && c.Index >= ey.Index
	h.ancestorCache.Add(pairKey{x, y}, res)
	return res, nil
}

// CanSee reports whether event x can see event y: y is reachable from x via
// self-parent/other-parent edges (spec.md §4.3).
func (h *History) CanSee(x, y EventID) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ancestor(x, y)
}

// stronglySee implements spec.md §4.3's strongly-sees relation: there exists
// a supermajority subset W of validators with an event reachable from x and
// reaching y (babble's _stronglySee, generalized to the peer set's
// SuperMajority threshold).
func (h *History) stronglySee(x, y EventID) (bool, error) {
	if c, ok := h.stronglySeeCache.Get(pairKey{x, y}); ok {
		return c.(bool), nil
	}
	ex, ok := h.events[x]
	if !ok {
		return false, fmt.Errorf("gossip: unknown event %s", x)
	}
	ey, ok := h.events[y]
	if !ok {
		return false, fmt.Errorf("gossip: unknown event %s", y)
	}

	count := 0
	for _, p := range h.peerSet.IDs() {
		xla, xlaok := ex.lastAncestors[p]
		yfd, yfdok := ey.firstDescendants[p]
		if xlaok && yfdok && xla.Index >= yfd.Index {
			count++
		}
	}

	res := count >= h.peerSet.SuperMajority()
	h.stronglySeeCache.Add(pairKey{x, y}, res)
	return res, nil
}

// StronglySees is the public, locked form of stronglySee.
func (h *History) StronglySees(x, y EventID) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stronglySee(x, y)
}

// assignRound implements spec.md §4.3's round-assignment rule: the smallest
// round r such that the event strongly-sees at least ⌊2|V|/3⌋+1 round-(r-1)
// witnesses, assuming its self/other parents (already inserted) have rounds
// assigned (babble's _round/witness, generalized from a fame vote to the
// spec's direct supermajority count).
func (h *History) assignRound(e *GossipEvent, selfParent *GossipEvent) {
	if selfParent == nil {
		e.round = 0
		e.witness = true
		return
	}

	parentRound := selfParent.round
	if !e.OtherParent.IsZero() {
		if op, ok := h.events[e.OtherParent]; ok && op.round > parentRound {
			parentRound = op.round
		}
	}

	witnesses := h.roundWitnesses[parentRound]
	count := 0
	for _, w := range witnesses {
		if ss, _ := h.stronglySee(e.ID(), w); ss {
			count++
		}
	}

	threshold := 2*h.peerSet.Len()/3 + 1
	if count >= threshold {
		e.round = parentRound + 1
	} else {
		e.round = parentRound
	}
	e.witness = e.round > selfParent.round
}

// Round returns the round assigned to event id.
func (h *History) Round(id EventID) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.events[id]
	if !ok {
		return 0, fmt.Errorf("gossip: unknown event %s", id)
	}
	return e.round, nil
}

// FirstLearned returns the earliest event of node whose announced-entries
// set contains entry id, per spec.md §4.3. The second return is false if
// node has never announced id.
func (h *History) FirstLearned(node peers.NodeID, id entry.ID) (EventID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.firstLearned[node]
	if !ok {
		return EventID{}, false
	}
	ev, ok := m[id]
	return ev, ok
}

// ReferenceCount returns the number of gossip events, across every creator,
// that announce entry id — spec.md §4.3's virtual-vote "ordering" value.
func (h *History) ReferenceCount(id entry.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.referenceCount[id]
}

// RoundWitnesses returns the witness events of round r.
func (h *History) RoundWitnesses(r int) []EventID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]EventID, len(h.roundWitnesses[r]))
	copy(out, h.roundWitnesses[r])
	return out
}
