package commands

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
)

const identitySeedSize = 32

// LoadOrCreateIdentity reads the hybrid identity seed at path, generating
// and persisting a fresh one on first run (mirroring babble's PemKey
// read-or-create flow in cmd/babble, but keyed off a single random seed
// rather than a PEM-encoded classical key, since a Rope identity derives
// both its classical and lattice keys from one seed).
func LoadOrCreateIdentity(path string) (*crypto.HybridKeyPair, error) {
	seed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		seed = make([]byte, identitySeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("commands: generate identity seed: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("commands: create keyfile directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(common.EncodeToString(seed)), 0600); err != nil {
			return nil, fmt.Errorf("commands: write identity seed: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("commands: read identity seed: %w", err)
	} else {
		seed, err = common.DecodeFromString(string(seed))
		if err != nil {
			return nil, fmt.Errorf("commands: decode identity seed: %w", err)
		}
	}

	return crypto.HybridKeyPairFromSeed(seed)
}
