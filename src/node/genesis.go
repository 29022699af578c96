package node

import (
	"context"
	"fmt"
	"time"

	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/net"
)

// genesisRequestMagic tags a TopicEntries request as "send me the genesis
// entry", the one bootstrap primitive a joining node needs before it can
// validate anything else (spec.md §3: "every honest entry must
// transitively reference the unique genesis entry").
var genesisRequestMagic = []byte("rope-genesis-request")

// Bootstrap admits the network's genesis entry into n's graph: if no
// bootstrap peers are configured, n is the founding node and mints its own
// genesis entry (rope-node/src/genesis.rs's role, minus the validator list,
// token allocations, and staking parameters spec.md §1 places out of
// scope — those are governance/economic concerns this core never models;
// only "the founding identity creates and admits the unique genesis entry"
// survives). Otherwise n fetches the existing genesis entry from the first
// reachable bootstrap peer.
func (n *Node) Bootstrap(ctx context.Context) error {
	if has, err := n.hasAnyGenesis(); err != nil {
		return err
	} else if has {
		return nil
	}

	if len(n.cfg.Bootstrap) == 0 {
		return n.mintGenesis()
	}
	return n.fetchGenesis(ctx)
}

func (n *Node) hasAnyGenesis() (bool, error) {
	n.genesisMu.Lock()
	defer n.genesisMu.Unlock()
	if n.genesisID.IsZero() {
		return false, nil
	}
	return n.graph.Has(n.genesisID)
}

func (n *Node) mintGenesis() error {
	g, err := entry.Genesis(n.identity)
	if err != nil {
		return fmt.Errorf("node: mint genesis: %w", err)
	}
	if err := n.graph.Admit(g); err != nil {
		return fmt.Errorf("node: admit genesis: %w", err)
	}
	n.genesisMu.Lock()
	n.genesisID = g.ID()
	n.genesisMu.Unlock()
	n.selfMu.Lock()
	n.selfEntryHead = g.ID()
	n.selfMu.Unlock()
	n.logger.WithField("id", g.ID()).Info("minted genesis entry")
	return nil
}

func (n *Node) fetchGenesis(ctx context.Context) error {
	var lastErr error
	for _, addr := range n.cfg.Bootstrap {
		peer, err := n.transport.Connect(addr)
		if err != nil {
			lastErr = err
			continue
		}
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		resp, err := peer.Request(reqCtx, net.TopicEntries, genesisRequestMagic)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		g, err := decodeEntryWire(resp)
		if err != nil {
			lastErr = err
			continue
		}
		if err := n.graph.Admit(g); err != nil {
			lastErr = err
			continue
		}
		n.genesisMu.Lock()
		n.genesisID = g.ID()
		n.genesisMu.Unlock()
		n.selfMu.Lock()
		n.selfEntryHead = g.ID()
		n.selfMu.Unlock()
		n.logger.WithField("id", g.ID()).WithField("from", addr).Info("fetched genesis entry")
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("node: no bootstrap peer reachable")
	}
	return fmt.Errorf("node: fetch genesis: %w", lastErr)
}

// handleEntryRequest answers a peer's TopicEntries request: either the
// genesis bootstrap primitive above, or (by entry id) any entry this node
// has locally admitted and not tombstoned.
func (n *Node) handleEntryRequest(_ *net.Peer, payload []byte) ([]byte, error) {
	if string(payload) == string(genesisRequestMagic) {
		n.genesisMu.Lock()
		id := n.genesisID
		n.genesisMu.Unlock()
		if id.IsZero() {
			return nil, fmt.Errorf("node: no genesis entry known yet")
		}
		e, ok, err := n.graph.Get(id)
		if err != nil || !ok {
			return nil, fmt.Errorf("node: genesis entry not found locally")
		}
		return encodeEntryWire(e), nil
	}

	if len(payload) != entry.IDSize {
		return nil, fmt.Errorf("node: malformed entry request")
	}
	var id entry.ID
	copy(id[:], payload)
	e, ok, err := n.graph.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("node: unknown entry %s", id)
	}
	return encodeEntryWire(e), nil
}
