// Package keys implements the classical and lattice-based key material that
// make up one half each of every hybrid keypair, signature, and key
// encapsulation in the core protocol stack.
package keys

import (
	"crypto/elliptic"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// secp256k1N is the curve order, used to validate derived private key
// scalars.
var secp256k1N = func() *big.Int {
	n, _ := new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
	return n
}()

// Curve returns the elliptic curve used for the classical half of every
// hybrid keypair: secp256k1, the same curve babble's identity keys use,
// rather than introducing a second classical curve.
func Curve() elliptic.Curve {
	return btcec.S256()
}

// validScalar reports whether d is a valid secp256k1 private key scalar:
// nonzero and strictly less than the curve order.
func validScalar(d *big.Int) bool {
	return d != nil && d.Sign() > 0 && d.Cmp(secp256k1N) < 0
}
