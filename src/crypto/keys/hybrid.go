package keys

import (
	"crypto/ecdsa"

	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// HybridPublicKey is the wire encoding [classical || lattice] described in
// spec.md §6. It bundles both the signing and the KEM lattice public keys
// because a single node identity is used for both authentication and key
// agreement.
type HybridPublicKey struct {
	Classical    *ecdsa.PublicKey
	LatticeSign  *mode3.PublicKey
	LatticeKEM   *kyber768.PublicKey
}

// HybridKeyPair is the full hybrid identity of a participant: one classical
// keypair and two lattice keypairs (sign + KEM).
type HybridKeyPair struct {
	ClassicalPriv   *ecdsa.PrivateKey
	LatticeSignPriv *mode3.PrivateKey
	LatticeKEMPriv  *kyber768.PrivateKey

	Public HybridPublicKey
}

// GenerateHybridKeyPair creates a fresh, randomly generated hybrid identity.
func GenerateHybridKeyPair() (*HybridKeyPair, error) {
	classicalPriv, err := GenerateClassicalKey()
	if err != nil {
		return nil, err
	}

	latticeSignPub, latticeSignPriv, err := GenerateLatticeSignKey()
	if err != nil {
		return nil, err
	}

	kemPub, kemPriv, err := GenerateKEMKey()
	if err != nil {
		return nil, err
	}

	return &HybridKeyPair{
		ClassicalPriv:   classicalPriv,
		LatticeSignPriv: latticeSignPriv,
		LatticeKEMPriv:  kemPriv,
		Public: HybridPublicKey{
			Classical:   &classicalPriv.PublicKey,
			LatticeSign: latticeSignPub,
			LatticeKEM:  kemPub,
		},
	}, nil
}

// HybridKeyPairFromSeed deterministically derives a full hybrid identity
// from an OES genome, per spec.md §4.5 step 3. The three sub-keys are
// derived from independently domain-separated sub-seeds so that recovering
// one sub-key's seed does not help recover another's.
func HybridKeyPairFromSeed(genome []byte, deriveSubSeed func(purpose string, genome []byte) []byte) (*HybridKeyPair, error) {
	classicalPriv, err := ClassicalKeyFromSeed(deriveSubSeed("classical", genome))
	if err != nil {
		return nil, err
	}

	latticeSignPub, latticeSignPriv, err := LatticeSignKeyFromSeed(deriveSubSeed("lattice-sign", genome))
	if err != nil {
		return nil, err
	}

	// Kyber768 keygen takes a kemDerivationSeedLen-byte seed, longer than one
	// sub-seed, so two domain-separated sub-seeds are concatenated.
	kemSeed := make([]byte, 0, kemDerivationSeedLen)
	kemSeed = append(kemSeed, deriveSubSeed("lattice-kem", genome)...)
	kemSeed = append(kemSeed, deriveSubSeed("lattice-kem-ext", genome)...)
	kemPub, kemPriv, err := KEMKeyFromSeed(kemSeed)
	if err != nil {
		return nil, err
	}

	return &HybridKeyPair{
		ClassicalPriv:   classicalPriv,
		LatticeSignPriv: latticeSignPriv,
		LatticeKEMPriv:  kemPriv,
		Public: HybridPublicKey{
			Classical:   &classicalPriv.PublicKey,
			LatticeSign: latticeSignPub,
			LatticeKEM:  kemPub,
		},
	}, nil
}
