package oes

import (
	"encoding/binary"
)

// Dynamic is one of the four deterministic entropy sources spec.md §4.5
// mixes into every genome derivation. Each dynamic reads and updates its
// own state from the previous genome and is stepped with fixed-point
// arithmetic exclusively, so every validator's binary produces the same
// bytes regardless of platform (spec.md §9, resolved in SPEC_FULL.md §7 as
// Q32.32 fixed point rather than floating point).
type Dynamic interface {
	// Step advances the dynamic by one generation, mixing in the previous
	// genome, and returns its output bytes for the genome derivation hash.
	Step(genome Genome) []byte
	// StateHash returns a hash of the dynamic's current internal state, one
	// of the dynamic_state_hashes folded into the commitment (spec.md §4.5
	// step 4).
	StateHash() [32]byte
	// Clone returns a deep copy of the dynamic, so a step computed for a
	// pending (not yet adopted) generation never mutates the live state a
	// second PendingCommitment call would step from (spec.md §4.5 "Network
	// agreement").
	Clone() Dynamic
}

func genomeWord(genome Genome, offset int) int64 {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = genome[(offset+i)%GenomeSize]
	}
	return int64(binary.BigEndian.Uint64(b[:]))
}

// odeDynamic is a Lorenz-like continuous-state system stepped by fixed-point
// forward Euler integration, standing in for spec.md §4.5's "continuous-
// state ODE-like" dynamic.
type odeDynamic struct {
	x, y, z Fixed
}

const odeStep = Fixed(1 << 24) // dt, a small fraction in Q32.32

func newODEDynamic() *odeDynamic {
	return &odeDynamic{x: FixedFromInt(1), y: FixedFromInt(1), z: FixedFromInt(1)}
}

func (d *odeDynamic) Step(genome Genome) []byte {
	sigma := FixedFromFraction(genomeWord(genome, 0)%1000+1, 100)
	rho := FixedFromFraction(genomeWord(genome, 8)%2800+1, 100)
	beta := FixedFromFraction(genomeWord(genome, 16)%267+1, 100)

	dx := sigma.Mul(d.y.Sub(d.x))
	dy := d.x.Mul(rho.Sub(d.z)).Sub(d.y)
	dz := d.x.Mul(d.y).Sub(beta.Mul(d.z))

	d.x = d.x.Add(dx.Mul(odeStep)).Clamp(FixedFromInt(1 << 20))
	d.y = d.y.Add(dy.Mul(odeStep)).Clamp(FixedFromInt(1 << 20))
	d.z = d.z.Add(dz.Mul(odeStep)).Clamp(FixedFromInt(1 << 20))

	return fixedBytes(d.x, d.y, d.z)
}

func (d *odeDynamic) StateHash() [32]byte {
	return hashFixed(d.x, d.y, d.z)
}

func (d *odeDynamic) Clone() Dynamic {
	c := *d
	return &c
}

// caDynamic is an elementary cellular automaton (rule 30, spec.md §4.5's
// "cellular automaton" dynamic) run for one generation over a genome-sized
// bit lattice.
type caDynamic struct {
	cells []byte // one bit per byte, 0 or 1
}

const caRule = 30
const caWidth = 256

func newCADynamic() *caDynamic {
	c := &caDynamic{cells: make([]byte, caWidth)}
	c.cells[caWidth/2] = 1
	return c
}

func (d *caDynamic) Step(genome Genome) []byte {
	for i := 0; i < GenomeSize; i++ {
		d.cells[i%caWidth] ^= genome[i] & 1
	}
	next := make([]byte, caWidth)
	for i := 0; i < caWidth; i++ {
		left := d.cells[(i-1+caWidth)%caWidth]
		center := d.cells[i]
		right := d.cells[(i+1)%caWidth]
		pattern := left<<2 | center<<1 | right
		next[i] = (caRule >> pattern) & 1
	}
	d.cells = next
	return packBits(d.cells)
}

func (d *caDynamic) StateHash() [32]byte {
	return hashBytes(packBits(d.cells))
}

func (d *caDynamic) Clone() Dynamic {
	cells := make([]byte, len(d.cells))
	copy(cells, d.cells)
	return &caDynamic{cells: cells}
}

func packBits(bits []byte) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b != 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// fractalDynamic iterates z = z^2 + c in fixed-point complex arithmetic
// (spec.md §4.5's "fractal iterate" dynamic), reporting the escape-time
// iteration count and final coordinates.
type fractalDynamic struct {
	zr, zi Fixed
	iters  int
}

const fractalMaxIters = 64
const fractalEscape = Fixed(4 << fixedScale)

func newFractalDynamic() *fractalDynamic {
	return &fractalDynamic{}
}

func (d *fractalDynamic) Step(genome Genome) []byte {
	cr := FixedFromFraction(genomeWord(genome, 24)%2000-1000, 1000)
	ci := FixedFromFraction(genomeWord(genome, 32)%2000-1000, 1000)

	d.zr, d.zi = FixedFromInt(0), FixedFromInt(0)
	d.iters = 0
	for d.iters < fractalMaxIters {
		zr2 := d.zr.Mul(d.zr)
		zi2 := d.zi.Mul(d.zi)
		if zr2.Add(zi2) > fractalEscape {
			break
		}
		newZr := zr2.Sub(zi2).Add(cr)
		newZi := FixedFromInt(2).Mul(d.zr).Mul(d.zi).Add(ci)
		d.zr, d.zi = newZr, newZi
		d.iters++
	}

	out := fixedBytes(d.zr, d.zi, FixedFromInt(int64(d.iters)))
	return out
}

func (d *fractalDynamic) StateHash() [32]byte {
	return hashFixed(d.zr, d.zi, FixedFromInt(int64(d.iters)))
}

func (d *fractalDynamic) Clone() Dynamic {
	c := *d
	return &c
}

// quantumWalkDynamic is a deterministic discrete-time walk over a fixed
// ring of positions, using a Hadamard-like fixed-point coin (spec.md §4.5's
// "pseudo-quantum walk" dynamic — deterministic by construction, since the
// commitment path forbids any nondeterministic entropy source).
type quantumWalkDynamic struct {
	amplitude []Fixed // one signed amplitude per position, ring topology
}

const walkPositions = 64

func newQuantumWalkDynamic() *quantumWalkDynamic {
	w := &quantumWalkDynamic{amplitude: make([]Fixed, walkPositions)}
	w.amplitude[0] = FixedFromInt(1)
	return w
}

func (w *quantumWalkDynamic) Step(genome Genome) []byte {
	coin := FixedFromFraction(genomeWord(genome, 40)%1000+1, 1414) // ~1/sqrt(2) scaled
	next := make([]Fixed, walkPositions)
	for i, amp := range w.amplitude {
		if amp == 0 {
			continue
		}
		left := (i - 1 + walkPositions) % walkPositions
		right := (i + 1) % walkPositions
		next[left] = next[left].Add(amp.Mul(coin))
		next[right] = next[right].Sub(amp.Mul(coin))
	}
	w.amplitude = next

	out := make([]byte, 0, walkPositions*8)
	for _, a := range w.amplitude {
		out = append(out, fixedBytes(a)...)
	}
	return out
}

func (w *quantumWalkDynamic) StateHash() [32]byte {
	return hashFixed(w.amplitude...)
}

func (w *quantumWalkDynamic) Clone() Dynamic {
	amplitude := make([]Fixed, len(w.amplitude))
	copy(amplitude, w.amplitude)
	return &quantumWalkDynamic{amplitude: amplitude}
}

func fixedBytes(vals ...Fixed) []byte {
	out := make([]byte, 0, len(vals)*8)
	for _, v := range vals {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(int64(v)))
		out = append(out, b[:]...)
	}
	return out
}

func hashFixed(vals ...Fixed) [32]byte {
	return hashBytes(fixedBytes(vals...))
}
