// Package commands wires the ropenode cobra commands and their viper-backed
// configuration, following babble's cmd/babble/commands layout (spec.md
// §4.8 "one binary per validator").
package commands

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"time"
)

// CLIConfig holds every value the run command needs, flattened the way
// babble's CLIConfig wraps config.Config: this core has no separate
// application-proxy process to address, so there is nothing to squash in
// alongside it.
type CLIConfig struct {
	DataDir    string        `mapstructure:"datadir"`
	LogLevel   string        `mapstructure:"log"`
	Moniker    string        `mapstructure:"moniker"`
	ChainID    string        `mapstructure:"chain-id"`
	ListenAddr string        `mapstructure:"listen"`
	Bootstrap  []string      `mapstructure:"bootstrap"`
	Validators string        `mapstructure:"validators"`

	AnchorInterval       time.Duration `mapstructure:"anchor-interval"`
	FinalityDepth        int           `mapstructure:"finality-depth"`
	OESInterval          uint64        `mapstructure:"oes-interval"`
	OESWindow            uint64        `mapstructure:"oes-window"`
	MinReplicationFactor uint32        `mapstructure:"min-replication-factor"`
	MaxReplicationFactor uint32        `mapstructure:"max-replication-factor"`
	CacheSize            int           `mapstructure:"cache-size"`
}

// NewDefaultCLIConfig creates a CLIConfig with default values, mirroring
// babble's NewDefaultCLIConfig.
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		DataDir:              DefaultDataDir(),
		LogLevel:             "info",
		ChainID:              "rope-default",
		ListenAddr:           "0.0.0.0:1337",
		AnchorInterval:       0,
		FinalityDepth:        0,
		OESInterval:          0,
		OESWindow:            0,
		MinReplicationFactor: 3,
		MaxReplicationFactor: 10,
		CacheSize:            5000,
	}
}

// Keyfile returns the full path of the file containing this validator's
// hybrid identity seed.
func (c *CLIConfig) Keyfile() string {
	return filepath.Join(c.DataDir, "priv_validator.seed")
}

// ValidatorsFile returns the full path of the file listing the network's
// validator set, defaulting to validators.json inside DataDir when the
// --validators flag is left empty.
func (c *CLIConfig) ValidatorsFile() string {
	if c.Validators != "" {
		return c.Validators
	}
	return filepath.Join(c.DataDir, "validators.json")
}

// DatabaseDir returns the directory the graph's Pebble backend writes into.
func (c *CLIConfig) DatabaseDir() string {
	return filepath.Join(c.DataDir, "db")
}

// DefaultDataDir mirrors babble's per-OS data directory convention.
func DefaultDataDir() string {
	home := HomeDir()
	if home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, ".Ropenode")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Ropenode")
	default:
		return filepath.Join(home, ".ropenode")
	}
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
