package oes

import (
	"crypto/rand"

	"github.com/KazeONGUENE/rope/src/crypto"
)

// GenomeSize is the fixed width of a genome vector: the entropy seed that,
// combined with the dynamics' outputs, derives every generation's key
// material (spec.md §4.5: "fixed-width byte vector; default ~1 KiB").
const GenomeSize = 1024

// Genome is the fixed-width byte vector seeding a single generation's
// dynamics and key derivation.
type Genome [GenomeSize]byte

// RandomGenome draws a fresh genome from the system CSPRNG, used only to
// seed generation 0 at genesis (every later generation is derived
// deterministically per spec.md §4.5 step 2).
func RandomGenome() (Genome, error) {
	var g Genome
	if _, err := rand.Read(g[:]); err != nil {
		return Genome{}, err
	}
	return g, nil
}

// deriveNextGenome computes the keyed hash of the previous genome and the
// combined dynamics outputs (spec.md §4.5 step 2). The digest is expanded
// to GenomeSize bytes by chaining the domain-separated hash with an
// incrementing counter, the same "hash ratchet" expansion babble's caches
// do not need but the OES genome does, since GenomeSize exceeds the 32-byte
// hash width.
func deriveNextGenome(previous Genome, dynamicsOutput []byte) Genome {
	var next Genome
	block := crypto.HashBytes(crypto.DomainOESGenome, previous[:], dynamicsOutput)
	off := 0
	counter := byte(0)
	for off < GenomeSize {
		n := copy(next[off:], block)
		off += n
		counter++
		block = crypto.HashBytes(crypto.DomainOESGenome, previous[:], dynamicsOutput, []byte{counter})
	}
	return next
}
