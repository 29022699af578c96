package oes

import (
	"encoding/binary"
	"sync"

	"github.com/KazeONGUENE/rope/src/crypto"
)

// DefaultInterval is the number of anchors between evolutions (spec.md
// §4.5: "every OES_INTERVAL anchors (default 100)").
const DefaultInterval = 100

// DefaultWindow is the default acceptance window W (spec.md §4.5).
const DefaultWindow = 10

func hashBytes(b []byte) [32]byte {
	return crypto.Hash(crypto.DomainOESGenome, b)
}

// Generation bundles everything derived at one evolution step: the genome,
// the four dynamics' post-step state, the derived hybrid keypair, and the
// commitment binding them together (spec.md §4.5 steps 1-4).
type Generation struct {
	Number    uint64
	Genome    Genome
	KeyPair   *crypto.HybridKeyPair
	Commitment [32]byte

	dynamicStateHashes [][32]byte
	// steppedDynamics carries the post-step state PendingCommitment computed
	// this generation's output from. nil for generation 0, where there is no
	// step to carry. Adopt installs it as the live dynamics.
	steppedDynamics []Dynamic
}

// commitmentOf derives H(generation || genome || dynamic_state_hashes)
// (spec.md §4.5 step 4).
func commitmentOf(number uint64, genome Genome, stateHashes [][32]byte) [32]byte {
	var numBuf [8]byte
	binary.BigEndian.PutUint64(numBuf[:], number)
	flat := make([]byte, 0, len(stateHashes)*32)
	for _, h := range stateHashes {
		flat = append(flat, h[:]...)
	}
	return crypto.Hash(crypto.DomainCommitment, numBuf[:], genome[:], flat)
}

// State is a single participant's OES: the current generation plus the
// live dynamics that carry state across evolutions. It is a process-wide
// object behind exclusive mutual exclusion — only the evolution task
// mutates it, readers pin a snapshot (spec.md §5, §9).
type State struct {
	mu sync.RWMutex

	interval uint64
	window   uint64

	current  Generation
	dynamics []Dynamic

	anchorsSinceEvolution uint64
}

// NewState seeds a fresh State at generation 0 from a random genome
// (genesis bootstrapping; every later generation is derived
// deterministically). interval <= 0 and window <= 0 fall back to spec
// defaults.
func NewState(interval, window uint64) (*State, error) {
	if interval == 0 {
		interval = DefaultInterval
	}
	if window == 0 {
		window = DefaultWindow
	}
	genome, err := RandomGenome()
	if err != nil {
		return nil, err
	}
	return newStateFromGenome(genome, 0, interval, window)
}

func newStateFromGenome(genome Genome, generation uint64, interval, window uint64) (*State, error) {
	kp, err := crypto.HybridKeyPairFromSeed(genome[:])
	if err != nil {
		return nil, err
	}
	dynamics := []Dynamic{newODEDynamic(), newCADynamic(), newFractalDynamic(), newQuantumWalkDynamic()}
	stateHashes := make([][32]byte, len(dynamics))
	for i, d := range dynamics {
		stateHashes[i] = d.StateHash()
	}
	return &State{
		interval: interval,
		window:   window,
		dynamics: dynamics,
		current: Generation{
			Number:     generation,
			Genome:     genome,
			KeyPair:    kp,
			Commitment: commitmentOf(generation, genome, stateHashes),
			dynamicStateHashes: stateHashes,
		},
	}, nil
}

// Snapshot returns a copy of the current generation's public fields for
// readers that must not block the evolution task.
func (s *State) Snapshot() Generation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// CurrentEpoch implements graph.EpochSource: the current OES generation
// number.
func (s *State) CurrentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Number
}

// Window implements graph.EpochSource: the acceptance window width W.
func (s *State) Window() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window
}

// KeyPair returns the current generation's hybrid keypair.
func (s *State) KeyPair() *crypto.HybridKeyPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.KeyPair
}

// OnAnchor advances the anchor counter and reports whether an evolution is
// now due (spec.md §4.5 "Evolution trigger: every OES_INTERVAL anchors").
// It does not itself evolve — the caller (src/node's OES ticker) calls
// Adopt once quorum on the pending commitment has been reached.
func (s *State) OnAnchor() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchorsSinceEvolution++
	if s.anchorsSinceEvolution >= s.interval {
		s.anchorsSinceEvolution = 0
		return true
	}
	return false
}

// PendingCommitment computes the next generation deterministically without
// mutating State, so it can be broadcast for agreement before being
// adopted (spec.md §4.5 "Network agreement": broadcast, then adopt only on
// quorum). It steps a clone of the live dynamics, never the live dynamics
// themselves: a stalled evolution that computes a second, different pending
// generation from the same adopted state must still derive it from
// identical dynamics state, or validators that stalled a different number
// of times would diverge on the commitment (spec.md §4.5).
func (s *State) PendingCommitment() Generation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stepped := make([]Dynamic, len(s.dynamics))
	dynamicsOutput := make([]byte, 0, 256)
	for i, d := range s.dynamics {
		clone := d.Clone()
		dynamicsOutput = append(dynamicsOutput, clone.Step(s.current.Genome)...)
		stepped[i] = clone
	}
	nextGenome := deriveNextGenome(s.current.Genome, dynamicsOutput)
	nextNumber := s.current.Number + 1

	stateHashes := make([][32]byte, len(stepped))
	for i, d := range stepped {
		stateHashes[i] = d.StateHash()
	}

	return Generation{
		Number:             nextNumber,
		Genome:             nextGenome,
		Commitment:         commitmentOf(nextNumber, nextGenome, stateHashes),
		dynamicStateHashes: stateHashes,
		steppedDynamics:    stepped,
	}
}

// Adopt installs a pending generation as current, deriving its keypair
// only now (spec.md §4.5 step 3), called once network commitment quorum
// has been observed (spec.md §4.5 "Network agreement"). Adopt does not
// check pending's commitment itself; it trusts its caller (the agreement
// quorum check already validated the commitment bytes match what peers
// broadcast).
func (s *State) Adopt(pending Generation) error {
	kp, err := crypto.HybridKeyPairFromSeed(pending.Genome[:])
	if err != nil {
		return err
	}
	pending.KeyPair = kp

	s.mu.Lock()
	defer s.mu.Unlock()
	if pending.steppedDynamics != nil {
		s.dynamics = pending.steppedDynamics
	}
	s.current = pending
	return nil
}
