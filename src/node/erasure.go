package node

import (
	"time"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/erasure"
	"github.com/KazeONGUENE/rope/src/net"
)

// ProposeErasure opens a controlled-erasure request for target (spec.md
// §4.7 step 1): policy is checked first, then the request is tracked
// locally and broadcast so other validators can add their co-signatures.
func (n *Node) ProposeErasure(target entry.ID, reason entry.ErasureReason, authorizerPubKey []byte) (*erasure.Request, error) {
	targetEntry, ok, err := n.graph.Get(target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.NewError(common.NotFound, target.String(), "cannot propose erasure of an unknown entry")
	}
	if err := n.erasureProc.Authorize(targetEntry, reason, authorizerPubKey); err != nil {
		return nil, err
	}

	timestamp := time.Now().UnixNano()
	req := n.openErasureRequest(target, reason, authorizerPubKey, timestamp)

	sig, err := n.coSignErasure(req)
	if err != nil {
		return nil, err
	}

	msg := encodeErasureOpenWire(target, reason, authorizerPubKey, timestamp, crypto.MarshalHybridSignature(sig))
	if err := n.transport.Publish(net.TopicErasure, msg); err != nil {
		n.logger.WithError(err).Debug("erasure request broadcast skipped")
	}
	return req, nil
}

// openErasureRequest returns the tracked Request for target, creating one
// if this is the first time it has been seen (whether from ProposeErasure
// or an incoming broadcast).
func (n *Node) openErasureRequest(target entry.ID, reason entry.ErasureReason, authorizer []byte, timestamp int64) *erasure.Request {
	n.erasureMu.Lock()
	defer n.erasureMu.Unlock()
	if req, ok := n.erasureReqs[target]; ok {
		return req
	}
	req := erasure.NewRequest(target, reason, authorizer, timestamp, nil, n.peerSet)
	n.erasureReqs[target] = req
	return req
}

// coSignErasure co-signs req with this validator's own identity and folds
// the signature into req's local tally, admitting the erasure record the
// moment quorum is reached.
func (n *Node) coSignErasure(req *erasure.Request) (crypto.HybridSignature, error) {
	pubBytes, err := crypto.MarshalHybridPublicKey(&n.identity.Public)
	if err != nil {
		return crypto.HybridSignature{}, err
	}
	sig, err := crypto.Sign(n.identity, req.SigningBytes())
	if err != nil {
		return crypto.HybridSignature{}, err
	}
	if quorum, err := req.CoSign(pubBytes, sig); err != nil {
		return crypto.HybridSignature{}, err
	} else if quorum {
		n.admitErasureRequest(req)
	}
	return sig, nil
}

func (n *Node) admitErasureRequest(req *erasure.Request) {
	if _, err := n.erasureProc.Admit(req, n.identity); err != nil {
		n.logger.WithError(err).Debug("erasure record admission skipped")
		return
	}
	n.metrics.recordErasureApplied()
}

// handleErasureBroadcast dispatches an incoming co-signing gossip message:
// either opening a request this validator hasn't seen yet, or a
// co-signature to fold into one already tracked.
func (n *Node) handleErasureBroadcast(payload []byte) {
	if len(payload) == 0 {
		return
	}
	switch payload[0] {
	case erasureMsgKindOpen:
		target, reason, authorizer, timestamp, _, err := decodeErasureOpenWire(payload[1:])
		if err != nil {
			n.logger.WithError(err).Debug("dropped malformed erasure open message")
			return
		}
		req := n.openErasureRequest(target, reason, authorizer, timestamp)
		if _, err := n.coSignErasure(req); err != nil {
			n.logger.WithError(err).Debug("erasure co-signature failed")
		}

	case erasureMsgKindCoSign:
		target, validatorPubKey, sig, err := decodeErasureCoSignWire(payload[1:])
		if err != nil {
			n.logger.WithError(err).Debug("dropped malformed erasure co-sign message")
			return
		}
		n.erasureMu.Lock()
		req, ok := n.erasureReqs[target]
		n.erasureMu.Unlock()
		if !ok {
			return
		}
		if quorum, err := req.CoSign(validatorPubKey, sig); err != nil {
			n.logger.WithError(err).Debug("erasure co-signature verification failed")
		} else if quorum {
			n.admitErasureRequest(req)
		}

	default:
		n.logger.WithField("kind", payload[0]).Debug("unknown erasure broadcast kind")
	}
}
