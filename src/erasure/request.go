package erasure

import (
	"sync"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/entry"
	"github.com/KazeONGUENE/rope/src/peers"
)

// Request accrues quorum co-signatures over one erasure record, mirroring
// babble's Block/BlockSignature accrual over a map keyed by validator hex
// (spec.md §4.7 step 3: "validators co-sign; once a byzantine quorum of
// co-signatures exists... it is admitted").
type Request struct {
	mu sync.Mutex

	record   entry.ErasureRecord
	peerSet  *peers.PeerSet
	sigs     map[string]crypto.HybridSignature
	admitted bool
}

// NewRequest starts tracking co-signatures for a fresh erasure record.
func NewRequest(target entry.ID, reason entry.ErasureReason, authorizer []byte, timestamp int64, requesterSig []byte, peerSet *peers.PeerSet) *Request {
	return &Request{
		record: entry.ErasureRecord{
			Target:       target,
			Reason:       reason,
			Authorizer:   authorizer,
			Timestamp:    timestamp,
			RequesterSig: requesterSig,
		},
		peerSet: peerSet,
		sigs:    make(map[string]crypto.HybridSignature),
	}
}

// Target returns the entry this request would erase.
func (r *Request) Target() entry.ID {
	return r.record.Target
}

// signingBytes is what each co-signer signs: the record's fixed fields,
// excluding the quorum signatures still being accumulated (spec.md §4.7
// step 1).
func (r *Request) signingBytes() []byte {
	tmp := r.record
	tmp.QuorumSignatures = nil
	return entry.EncodeErasureRecord(tmp)
}

// SigningBytes exposes signingBytes to the network-facing co-signer
// (src/node): every validator asked to co-sign a request needs the exact
// bytes CoSign will later verify against.
func (r *Request) SigningBytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.signingBytes()
}

// CoSign validates and records a validator's co-signature, returning true
// the first time a byzantine quorum is reached (spec.md §4.7 step 3). Later
// calls after quorum is reached are no-ops, matching admission's own
// idempotence.
func (r *Request) CoSign(validatorPubKey []byte, sig crypto.HybridSignature) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.admitted {
		return false, nil
	}

	peer, ok := r.peerSet.ByPubKey[common.EncodeToString(validatorPubKey)]
	if !ok {
		return false, common.NewError(common.Unauthorized, r.record.Target.String(), "co-signer is not a known validator")
	}

	pub, err := crypto.UnmarshalHybridPublicKey(validatorPubKey)
	if err != nil {
		return false, common.NewError(common.InvalidPublicKey, peer.ID().String(), err.Error())
	}
	if !crypto.Verify(pub, r.signingBytes(), sig) {
		return false, common.NewError(common.InvalidSignature, peer.ID().String(), "erasure co-signature failed verification")
	}

	r.sigs[peer.PubKeyHex()] = sig

	quorum := r.peerSet.SuperMajority()
	if len(r.sigs) >= quorum {
		r.admitted = true
		return true, nil
	}
	return false, nil
}

// QuorumReached reports whether CoSign has ever returned true for this
// request.
func (r *Request) QuorumReached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.admitted
}

// SignatureCount returns how many distinct validators have co-signed so
// far.
func (r *Request) SignatureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sigs)
}

// Record materializes the current ErasureRecord with every accumulated
// co-signature flattened into QuorumSignatures, ready to become an entry's
// Content once quorum is reached.
func (r *Request) Record() entry.ErasureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.record
	out.QuorumSignatures = nil
	for _, sig := range r.sigs {
		out.QuorumSignatures = append(out.QuorumSignatures, crypto.MarshalHybridSignature(sig))
	}
	return out
}
