// Package node wires the graph, gossip history, anchor/finality engine, OES
// state, regeneration, erasure processing, and the QUIC overlay into a
// single running validator (spec.md §4.8, §5, restoring the top-level
// wiring the distillation summarized away).
package node

import (
	"testing"
	"time"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/sirupsen/logrus"
)

// Config collects everything a Node needs to start, mirroring babble's flat
// Config-plus-DefaultConfig-plus-TestConfig shape rather than the layered
// Settings-struct-per-concern shape of the original Rust node crate: this
// core has no economic/governance settings to layer in (spec.md §1
// Non-goals), so one flat struct is proportionate.
type Config struct {
	// Identity is the validator's hybrid keypair. Required.
	Identity *crypto.HybridKeyPair `mapstructure:"-"`

	// ChainID identifies the network this node participates in. It is an
	// opaque configuration input, never a hard-coded constant, so the same
	// binary can join a testnet or mainnet-equivalent deployment.
	ChainID string `mapstructure:"chain-id"`

	// ListenAddr is the local address the QUIC transport binds to.
	ListenAddr string `mapstructure:"listen-addr"`
	// Bootstrap is the statically configured peer set dialed on startup
	// (spec.md §4.8 "small statically configured bootstrap peer set").
	Bootstrap []string `mapstructure:"bootstrap"`

	// AnchorInterval is the minimum time between anchor promotions
	// (spec.md §4.4). Zero falls back to consensus.DefaultAnchorInterval.
	AnchorInterval time.Duration `mapstructure:"anchor-interval"`
	// FinalityDepth is the number of enclosing anchors required for
	// finality (spec.md §4.4). Zero falls back to
	// consensus.DefaultFinalityDepth.
	FinalityDepth int `mapstructure:"finality-depth"`

	// OESInterval is the number of anchors between OES evolutions
	// (spec.md §4.5). Zero falls back to oes.DefaultInterval.
	OESInterval uint64 `mapstructure:"oes-interval"`
	// OESWindow is the OES acceptance window W (spec.md §4.5). Zero falls
	// back to oes.DefaultWindow.
	OESWindow uint64 `mapstructure:"oes-window"`

	// MinReplicationFactor and MaxReplicationFactor bound the ρ a creator
	// may request for a new entry (spec.md §4.1 "the creator chooses ρ
	// within network-configured bounds").
	MinReplicationFactor uint32 `mapstructure:"min-replication-factor"`
	MaxReplicationFactor uint32 `mapstructure:"max-replication-factor"`

	// CacheSize bounds the gossip History's ancestor/strongly-sees LRU
	// caches (spec.md §5 resource bounds).
	CacheSize int `mapstructure:"cache-size"`

	// DataDir is the on-disk path for the graph's Pebble backend. Empty
	// means run entirely in memory (used by TestConfig and short-lived
	// single-process demos).
	DataDir string `mapstructure:"data-dir"`

	// GossipInterval paces the gossip pump's sync-request cadence
	// (spec.md §5 "suspension points").
	GossipInterval time.Duration `mapstructure:"gossip-interval"`
	// GossipFanout bounds how many peers one gossip round targets.
	GossipFanout int `mapstructure:"gossip-fanout"`

	Logger *logrus.Logger
}

// DefaultConfig returns a Config with sane network-wide defaults, an
// in-memory data directory, and no bootstrap peers -- suitable for a
// single, isolated node. Identity and ChainID are left unset; the caller
// must supply them.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.InfoLevel

	return &Config{
		ListenAddr:           "0.0.0.0:0",
		AnchorInterval:       0, // consensus.DefaultAnchorInterval
		FinalityDepth:        0, // consensus.DefaultFinalityDepth
		OESInterval:          0, // oes.DefaultInterval
		OESWindow:            0, // oes.DefaultWindow
		MinReplicationFactor: 3,
		MaxReplicationFactor: 10,
		CacheSize:            5000,
		GossipInterval:       200 * time.Millisecond,
		GossipFanout:         3,
		Logger:               logger,
	}
}

// TestConfig returns a DefaultConfig wired to a fresh identity and a
// t.Logf-backed logger, following babble's TestConfig(t) pattern.
func TestConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = common.NewTestLogger(t)
	cfg.ChainID = "test-chain"
	cfg.ListenAddr = "127.0.0.1:0"

	kp, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	cfg.Identity = kp

	return cfg
}
