package keys

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Lattice signature sizes (CRYSTALS-Dilithium mode3 / "Dilithium3").
const (
	LatticePublicKeySize  = mode3.PublicKeySize
	LatticePrivateKeySize = mode3.PrivateKeySize
	LatticeSignatureSize  = mode3.SignatureSize
	latticeSeedSize       = mode3.SeedSize
)

// Lattice KEM sizes (CRYSTALS-Kyber768).
const (
	KEMPublicKeySize     = kyber768.PublicKeySize
	KEMPrivateKeySize    = kyber768.PrivateKeySize
	KEMCiphertextSize    = kyber768.CiphertextSize
	KEMSharedSecretSize  = kyber768.SharedKeySize
	kemDerivationSeedLen = kyber768.KeySeedSize
	kemEncapsSeedLen     = kyber768.EncapsulationSeedSize
)

// GenerateLatticeSignKey creates a new Dilithium3 signing keypair.
func GenerateLatticeSignKey() (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand.Reader)
}

// LatticeSignKeyFromSeed deterministically derives a Dilithium3 keypair from
// a 32-byte seed (spec.md §4.5: "lattice keys use the genome as a seed to
// the primitive's keygen").
func LatticeSignKeyFromSeed(seed []byte) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	if len(seed) < latticeSeedSize {
		return nil, nil, fmt.Errorf("lattice seed too short: need %d bytes, got %d", latticeSeedSize, len(seed))
	}
	var s [latticeSeedSize]byte
	copy(s[:], seed)
	pk, sk := mode3.NewKeyFromSeed(&s)
	return pk, sk, nil
}

// SignLattice signs message with the Dilithium3 private key.
func SignLattice(sk *mode3.PrivateKey, message []byte) []byte {
	sig := make([]byte, LatticeSignatureSize)
	mode3.SignTo(sk, message, sig)
	return sig
}

// VerifyLattice verifies a Dilithium3 signature, rejecting anything of the
// wrong length outright.
func VerifyLattice(pk *mode3.PublicKey, message, sig []byte) bool {
	if len(sig) != LatticeSignatureSize {
		return false
	}
	return mode3.Verify(pk, message, sig)
}

// GenerateKEMKey creates a new Kyber768 encapsulation keypair.
func GenerateKEMKey() (*kyber768.PublicKey, *kyber768.PrivateKey, error) {
	seed := make([]byte, kemDerivationSeedLen)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, err
	}
	pk, sk := kyber768.NewKeyFromSeed(seed)
	return pk, sk, nil
}

// KEMKeyFromSeed deterministically derives a Kyber768 keypair from an OES
// genome-derived seed of at least kemDerivationSeedLen bytes.
func KEMKeyFromSeed(seed []byte) (*kyber768.PublicKey, *kyber768.PrivateKey, error) {
	if len(seed) < kemDerivationSeedLen {
		return nil, nil, fmt.Errorf("kem seed too short: need %d bytes, got %d", kemDerivationSeedLen, len(seed))
	}
	pk, sk := kyber768.NewKeyFromSeed(seed[:kemDerivationSeedLen])
	return pk, sk, nil
}

// UnmarshalLatticeSignPublicKey parses a Dilithium3 public key from its
// fixed-width binary encoding.
func UnmarshalLatticeSignPublicKey(b []byte) (*mode3.PublicKey, error) {
	if len(b) != LatticePublicKeySize {
		return nil, fmt.Errorf("invalid lattice sign public key length: %d", len(b))
	}
	var pk mode3.PublicKey
	if err := pk.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return &pk, nil
}

// UnmarshalLatticeKEMPublicKey parses a Kyber768 public key from its
// fixed-width binary encoding.
func UnmarshalLatticeKEMPublicKey(b []byte) (*kyber768.PublicKey, error) {
	if len(b) != KEMPublicKeySize {
		return nil, fmt.Errorf("invalid lattice kem public key length: %d", len(b))
	}
	var pk kyber768.PublicKey
	pk.Unpack(b)
	return &pk, nil
}

// Encapsulate produces a ciphertext and shared secret against the peer's
// Kyber768 public key.
func Encapsulate(pub *kyber768.PublicKey) (ciphertext, sharedSecret []byte, err error) {
	seed := make([]byte, kemEncapsSeedLen)
	if _, err = rand.Read(seed); err != nil {
		return nil, nil, err
	}
	ciphertext = make([]byte, KEMCiphertextSize)
	sharedSecret = make([]byte, KEMSharedSecretSize)
	pub.EncapsulateTo(ciphertext, sharedSecret, seed)
	return ciphertext, sharedSecret, nil
}

// Decapsulate recovers the shared secret from a ciphertext using the local
// Kyber768 private key.
func Decapsulate(priv *kyber768.PrivateKey, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != KEMCiphertextSize {
		return nil, fmt.Errorf("invalid ciphertext length: %d", len(ciphertext))
	}
	sharedSecret := make([]byte, KEMSharedSecretSize)
	priv.DecapsulateTo(sharedSecret, ciphertext)
	return sharedSecret, nil
}
