package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// ClassicalSignatureSize is the fixed-width encoding of a classical
// (secp256k1 ECDSA) signature: two 32-byte big-endian integers, R then S.
const ClassicalSignatureSize = 64

// ClassicalPublicKeySize is the uncompressed point encoding size.
const ClassicalPublicKeySize = 65

// GenerateClassicalKey creates a new secp256k1 keypair using the system
// CSPRNG, the same wrapper babble uses around ecdsa.GenerateKey.
func GenerateClassicalKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(Curve(), rand.Reader)
}

// ClassicalKeyFromSeed deterministically derives a secp256k1 keypair from a
// 32-byte seed, used by OES to derive the next generation's classical
// signing key from the new genome. The seed feeds a CSPRNG (not the curve's
// scalar space directly) so any 32 bytes are a valid seed; the resulting
// scalar is still checked against the curve order before it is trusted.
func ClassicalKeyFromSeed(seed []byte) (*ecdsa.PrivateKey, error) {
	// The scalar is read from the seeded stream directly: ecdsa.GenerateKey
	// does not derive its key deterministically from the reader it is given.
	reader := newSeededReader(seed)
	c := Curve()
	buf := make([]byte, (c.Params().N.BitLen()+7)/8)
	for {
		if _, err := io.ReadFull(reader, buf); err != nil {
			return nil, err
		}
		d := new(big.Int).SetBytes(buf)
		if !validScalar(d) {
			continue
		}
		priv := &ecdsa.PrivateKey{D: d}
		priv.PublicKey.Curve = c
		priv.PublicKey.X, priv.PublicKey.Y = c.ScalarBaseMult(buf)
		return priv, nil
	}
}

// MarshalClassicalPublicKey returns the uncompressed point encoding.
func MarshalClassicalPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// UnmarshalClassicalPublicKey parses the uncompressed point encoding.
func UnmarshalClassicalPublicKey(b []byte) (*ecdsa.PublicKey, error) {
	if len(b) != ClassicalPublicKeySize {
		return nil, fmt.Errorf("invalid classical public key length: %d", len(b))
	}
	x, y := elliptic.Unmarshal(Curve(), b)
	if x == nil {
		return nil, fmt.Errorf("invalid classical public key encoding")
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}, nil
}

// SignClassical signs a message digest with the classical secp256k1 key and
// returns the fixed 64-byte R||S encoding.
func SignClassical(priv *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
	if err != nil {
		return nil, err
	}
	out := make([]byte, ClassicalSignatureSize)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out, nil
}

// VerifyClassical verifies a fixed 64-byte R||S signature. It never accepts
// a signature of the wrong length.
func VerifyClassical(pub *ecdsa.PublicKey, digest, sig []byte) bool {
	if len(sig) != ClassicalSignatureSize {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	return ecdsa.Verify(pub, digest, r, s)
}

// ECDH performs real secp256k1 scalar multiplication of the local private
// key's scalar with the peer's public point, returning the shared point's
// X-coordinate as bytes. This is genuine elliptic-curve Diffie-Hellman, not
// a hash-based stand-in.
func ECDH(priv *ecdsa.PrivateKey, peerPub *ecdsa.PublicKey) ([]byte, error) {
	if peerPub == nil || peerPub.X == nil || peerPub.Y == nil {
		return nil, fmt.Errorf("nil peer public key")
	}
	x, _ := Curve().ScalarMult(peerPub.X, peerPub.Y, priv.D.Bytes())
	if x == nil {
		return nil, fmt.Errorf("ECDH scalar multiplication failed")
	}
	buf := make([]byte, 32)
	x.FillBytes(buf)
	return buf, nil
}
