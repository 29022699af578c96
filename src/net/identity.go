package net

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/peers"
)

// hello is the first message exchanged over a fresh QUIC connection's
// handshake stream, binding a node's real hybrid identity to a transport
// session whose TLS certificate carries no identity of its own (see
// cert.go). Both sides send one and verify the other's before the
// connection is added to the peer table.
type hello struct {
	PubKey []byte // marshalled hybrid public key
	Nonce  [32]byte
	Sig    crypto.HybridSignature
}

// helloSigningBytes is what Sig covers: the nonce plus the presenting side's
// TLS certificate fingerprint, so a signature captured from one session
// cannot be replayed to authenticate a different one.
func helloSigningBytes(nonce [32]byte, certFingerprint []byte) []byte {
	return crypto.HashBytes("net-handshake", nonce[:], certFingerprint)
}

// newHello builds and signs a hello for the local identity, binding it to
// localCertFingerprint (our own certificate, since the peer verifies our
// hello against the certificate we presented to them).
func newHello(kp *crypto.HybridKeyPair, localCertFingerprint []byte) (hello, error) {
	pubKey, err := crypto.MarshalHybridPublicKey(&kp.Public)
	if err != nil {
		return hello{}, err
	}
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return hello{}, fmt.Errorf("generate nonce: %w", err)
	}
	sig, err := crypto.Sign(kp, helloSigningBytes(nonce, localCertFingerprint))
	if err != nil {
		return hello{}, err
	}
	return hello{PubKey: pubKey, Nonce: nonce, Sig: sig}, nil
}

// verify checks h's signature against the certificate fingerprint the peer
// that sent it actually presented (remoteCertFingerprint, from our side of
// the connection) and returns the peer's identity.
func (h hello) verify(remoteCertFingerprint []byte) (*crypto.HybridPublicKey, peers.NodeID, error) {
	pub, err := crypto.UnmarshalHybridPublicKey(h.PubKey)
	if err != nil {
		return nil, peers.NodeID{}, fmt.Errorf("hello: %w", err)
	}
	if !crypto.Verify(pub, helloSigningBytes(h.Nonce, remoteCertFingerprint), h.Sig) {
		return nil, peers.NodeID{}, fmt.Errorf("hello: signature verification failed")
	}
	return pub, peers.NodeIDFromHybridPublicKey(h.PubKey), nil
}

// encodeHello serializes h as
// [4B pubkey len || pubkey || 32B nonce || 4B sig len || sig].
func encodeHello(h hello) []byte {
	sig := crypto.MarshalHybridSignature(h.Sig)
	out := make([]byte, 0, 4+len(h.PubKey)+32+4+len(sig))
	var lenBuf [4]byte

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(h.PubKey)))
	out = append(out, lenBuf[:]...)
	out = append(out, h.PubKey...)

	out = append(out, h.Nonce[:]...)

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sig)))
	out = append(out, lenBuf[:]...)
	out = append(out, sig...)

	return out
}

func decodeHello(b []byte) (hello, error) {
	if len(b) < 4 {
		return hello{}, fmt.Errorf("hello: truncated pubkey length")
	}
	pubLen := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(pubLen) > uint64(len(b)) {
		return hello{}, fmt.Errorf("hello: truncated pubkey")
	}
	pubKey := append([]byte(nil), b[:pubLen]...)
	b = b[pubLen:]

	if len(b) < 32 {
		return hello{}, fmt.Errorf("hello: truncated nonce")
	}
	var nonce [32]byte
	copy(nonce[:], b[:32])
	b = b[32:]

	if len(b) < 4 {
		return hello{}, fmt.Errorf("hello: truncated sig length")
	}
	sigLen := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(sigLen) != uint64(len(b)) {
		return hello{}, fmt.Errorf("hello: sig length mismatch")
	}
	sig, err := crypto.UnmarshalHybridSignature(b)
	if err != nil {
		return hello{}, fmt.Errorf("hello: %w", err)
	}

	return hello{PubKey: pubKey, Nonce: nonce, Sig: sig}, nil
}
