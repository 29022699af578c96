package crypto

import (
	"encoding/binary"
	"fmt"

	"github.com/KazeONGUENE/rope/src/crypto/keys"
)

// HybridPublicKey is the wire-level [classical || lattice-sign || lattice-kem]
// identity of a participant, as used everywhere an entry or protocol message
// names an author.
type HybridPublicKey = keys.HybridPublicKey

// HybridKeyPair bundles the private halves alongside the public identity.
type HybridKeyPair = keys.HybridKeyPair

// GenerateHybridKeyPair creates a fresh random hybrid identity.
func GenerateHybridKeyPair() (*HybridKeyPair, error) {
	return keys.GenerateHybridKeyPair()
}

// HybridKeyPairFromSeed deterministically derives a hybrid identity from a
// seed, the operation the OES evolution step uses to turn a new genome into
// a new generation's keypair (spec.md §4.5 step 3).
func HybridKeyPairFromSeed(seed []byte) (*HybridKeyPair, error) {
	return keys.HybridKeyPairFromSeed(seed, func(purpose string, genome []byte) []byte {
		return HashBytes(purpose, genome)
	})
}

// MarshalHybridPublicKey encodes a hybrid public key as
// [4B classical len || classical || 4B lattice-sign len || lattice-sign ||
//  4B lattice-kem len || lattice-kem], the same length-prefixed concatenation
// scheme used for hybrid signatures.
func MarshalHybridPublicKey(pub *HybridPublicKey) ([]byte, error) {
	classical := keys.MarshalClassicalPublicKey(pub.Classical)
	if classical == nil {
		return nil, fmt.Errorf("nil classical public key")
	}
	latticeSign, err := pub.LatticeSign.MarshalBinary()
	if err != nil {
		return nil, err
	}
	latticeKEM, err := pub.LatticeKEM.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return concatLengthPrefixed(classical, latticeSign, latticeKEM), nil
}

// UnmarshalHybridPublicKey parses the wire encoding produced by
// MarshalHybridPublicKey back into a HybridPublicKey, the inverse used
// whenever an entry's Creator bytes must be resolved to a verifiable key
// (graph.PublicKeyDecoder's default implementation).
func UnmarshalHybridPublicKey(b []byte) (*HybridPublicKey, error) {
	parts, err := splitLengthPrefixed(b, 3)
	if err != nil {
		return nil, fmt.Errorf("hybrid public key: %w", err)
	}
	classical, err := keys.UnmarshalClassicalPublicKey(parts[0])
	if err != nil {
		return nil, fmt.Errorf("hybrid public key: classical: %w", err)
	}
	latticeSign, err := keys.UnmarshalLatticeSignPublicKey(parts[1])
	if err != nil {
		return nil, fmt.Errorf("hybrid public key: lattice sign: %w", err)
	}
	latticeKEM, err := keys.UnmarshalLatticeKEMPublicKey(parts[2])
	if err != nil {
		return nil, fmt.Errorf("hybrid public key: lattice kem: %w", err)
	}
	return &HybridPublicKey{
		Classical:   classical,
		LatticeSign: latticeSign,
		LatticeKEM:  latticeKEM,
	}, nil
}

func concatLengthPrefixed(parts ...[]byte) []byte {
	total := 0
	for _, p := range parts {
		total += 4 + len(p)
	}
	out := make([]byte, 0, total)
	var lenBuf [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		out = append(out, lenBuf[:]...)
		out = append(out, p...)
	}
	return out
}

func splitLengthPrefixed(b []byte, n int) ([][]byte, error) {
	parts := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("truncated length-prefixed field %d", i)
		}
		l := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < l {
			return nil, fmt.Errorf("truncated length-prefixed field %d: need %d, have %d", i, l, len(b))
		}
		parts = append(parts, b[:l])
		b = b[l:]
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("trailing bytes after %d length-prefixed fields", n)
	}
	return parts, nil
}

// HybridSignature is the concatenation of the classical and lattice
// signatures over the same message, each length-prefixed.
type HybridSignature struct {
	Classical []byte
	Lattice   []byte
}

// MarshalHybridSignature returns the wire encoding
// [4B classical len || classical || 4B lattice len || lattice].
func MarshalHybridSignature(sig HybridSignature) []byte {
	return concatLengthPrefixed(sig.Classical, sig.Lattice)
}

// UnmarshalHybridSignature parses the wire encoding of a hybrid signature.
func UnmarshalHybridSignature(b []byte) (HybridSignature, error) {
	parts, err := splitLengthPrefixed(b, 2)
	if err != nil {
		return HybridSignature{}, fmt.Errorf("hybrid signature: %w", err)
	}
	return HybridSignature{Classical: parts[0], Lattice: parts[1]}, nil
}

// Sign produces a hybrid signature over message, both halves computed
// independently over the same bytes.
func Sign(kp *HybridKeyPair, message []byte) (HybridSignature, error) {
	digest := HashBytes(DomainEntry, message)
	classicalSig, err := keys.SignClassical(kp.ClassicalPriv, digest)
	if err != nil {
		return HybridSignature{}, err
	}
	latticeSig := keys.SignLattice(kp.LatticeSignPriv, message)
	return HybridSignature{Classical: classicalSig, Lattice: latticeSig}, nil
}

// Verify checks a hybrid signature. Both the classical and lattice
// components must independently verify; there is no fallback path that
// accepts a signature missing or failing either half.
func Verify(pub *HybridPublicKey, message []byte, sig HybridSignature) bool {
	digest := HashBytes(DomainEntry, message)
	if !keys.VerifyClassical(pub.Classical, digest, sig.Classical) {
		return false
	}
	return keys.VerifyLattice(pub.LatticeSign, message, sig.Lattice)
}

// HybridCiphertext is the encapsulation output sent to a recipient: the
// Kyber768 ciphertext plus the ephemeral classical public key used for the
// ECDH half.
type HybridCiphertext struct {
	KyberCiphertext    []byte
	EphemeralClassical []byte
}

// Encapsulate derives a shared secret against a recipient's hybrid public
// key. The classical half uses a freshly generated ephemeral keypair (an
// ephemeral-static ECDH, the standard construction for one-shot
// encapsulation against a static classical public key) and the lattice half
// uses Kyber768's own ephemeral encapsulation. The combined secret is
// blake3_keyed("rope-hybrid-kem", ecdh_secret || kyber_secret).
func Encapsulate(recipient *HybridPublicKey) (HybridCiphertext, []byte, error) {
	ephemeral, err := keys.GenerateClassicalKey()
	if err != nil {
		return HybridCiphertext{}, nil, err
	}
	ecdhSecret, err := keys.ECDH(ephemeral, recipient.Classical)
	if err != nil {
		return HybridCiphertext{}, nil, err
	}

	kyberCiphertext, kyberSecret, err := keys.Encapsulate(recipient.LatticeKEM)
	if err != nil {
		return HybridCiphertext{}, nil, err
	}

	combined := HashBytes(DomainHybridKEM, ecdhSecret, kyberSecret)

	ct := HybridCiphertext{
		KyberCiphertext:    kyberCiphertext,
		EphemeralClassical: keys.MarshalClassicalPublicKey(&ephemeral.PublicKey),
	}
	return ct, combined, nil
}

// Decapsulate recovers the shared secret computed by Encapsulate, using the
// local hybrid private key material.
func Decapsulate(kp *HybridKeyPair, ct HybridCiphertext) ([]byte, error) {
	ephemeralPub, err := keys.UnmarshalClassicalPublicKey(ct.EphemeralClassical)
	if err != nil {
		return nil, err
	}
	ecdhSecret, err := keys.ECDH(kp.ClassicalPriv, ephemeralPub)
	if err != nil {
		return nil, err
	}

	kyberSecret, err := keys.Decapsulate(kp.LatticeKEMPriv, ct.KyberCiphertext)
	if err != nil {
		return nil, err
	}

	return HashBytes(DomainHybridKEM, ecdhSecret, kyberSecret), nil
}
