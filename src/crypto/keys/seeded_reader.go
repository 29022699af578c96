package keys

import (
	"io"

	"github.com/zeebo/blake3"
)

// newSeededReader returns a deterministic io.Reader driven by blake3's
// extendable-output mode, keyed with the given seed. It is used wherever the
// spec requires deterministic key derivation from an OES genome: "classical
// keys use the genome as the seed to the CSPRNG feeding scalar generation"
// (spec.md §4.5 step 3).
func newSeededReader(seed []byte) io.Reader {
	h := blake3.New()
	_, _ = h.Write([]byte("rope-oes-classical-csprng"))
	_, _ = h.Write(seed)
	return h.Digest()
}
