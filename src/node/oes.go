package node

import (
	"github.com/KazeONGUENE/rope/src/net"
	"github.com/KazeONGUENE/rope/src/oes"
	"github.com/KazeONGUENE/rope/src/peers"
)

// onAnchorPromoted advances the OES anchor counter and, when an evolution
// is due, computes and broadcasts this validator's commitment to the next
// generation without yet adopting it (spec.md §4.5: "broadcast, then adopt
// only on quorum").
func (n *Node) onAnchorPromoted() {
	if !n.oesState.OnAnchor() {
		return
	}

	pending := n.oesState.PendingCommitment()

	n.oesMu.Lock()
	if n.oesAgreement != nil && !n.oesAgreement.Stalled() {
		if _, decided := n.oesAgreement.Decided(); !decided {
			n.logger.WithField("generation", n.oesAgreement.Generation()).
				Warn("oes agreement window elapsed without quorum, retaining previous generation")
			n.oesAgreement.MarkStalled()
		}
	}
	n.oesPending = pending
	n.oesAgreement = oes.NewAgreement(n.peerSet, pending.Number)
	agreement := n.oesAgreement
	n.oesMu.Unlock()

	agreement.RecordCommitment(n.selfID, pending.Commitment)

	msg := encodeOESCommitmentWire(n.selfID, pending.Number, pending.Commitment)
	if err := n.transport.Publish(net.TopicAnchors, msg); err != nil {
		n.logger.WithError(err).Debug("oes commitment broadcast skipped")
	}
}

// handleOESCommitment folds a peer's broadcast commitment into the live
// Agreement for that generation, adopting the pending generation once
// quorum (2f+1 matching commitments) is reached (spec.md §4.5 step 3).
func (n *Node) handleOESCommitment(validator peers.NodeID, generation uint64, commitment [32]byte) {
	n.oesMu.Lock()
	agreement := n.oesAgreement
	pending := n.oesPending
	n.oesMu.Unlock()

	if agreement == nil || agreement.Generation() != generation {
		// Either no evolution is pending, or this commitment is stale
		// relative to what we're currently tracking; either way there is
		// nothing to fold it into.
		return
	}

	if !agreement.RecordCommitment(validator, commitment) {
		return
	}

	decidedVal, decided := agreement.Decided()
	if !decided || decidedVal != pending.Commitment {
		// Quorum settled on a value that isn't the one we computed
		// ourselves -- our own dynamics state has diverged from the
		// network's. Do not adopt; an operator alarm belongs here in a
		// full deployment, the core just refuses to move forward silently.
		return
	}

	if err := n.oesState.Adopt(pending); err != nil {
		n.logger.WithError(err).Error("oes generation adoption failed")
		return
	}
	n.metrics.recordOESGeneration()
	n.logger.WithField("generation", pending.Number).Info("adopted new oes generation")
}
