package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/KazeONGUENE/rope/src/node"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// NewRunCmd returns the command that starts a Rope validator, following
// babble's PreRunE/RunE split between config loading and execution
// (cmd/babble/commands/run.go).
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run a validator node",
		PreRunE: loadConfig,
		RunE:    runNode,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("moniker", config.Moniker, "Optional name for this validator")
	cmd.Flags().String("chain-id", config.ChainID, "Identifies the network this node joins")

	cmd.Flags().StringP("listen", "l", config.ListenAddr, "Listen IP:Port for the QUIC overlay")
	cmd.Flags().StringSliceP("bootstrap", "b", config.Bootstrap, "Bootstrap peer addresses")
	cmd.Flags().String("validators", config.Validators, "Path to validators.json (defaults inside datadir)")

	cmd.Flags().Duration("anchor-interval", config.AnchorInterval, "Minimum time between anchor promotions")
	cmd.Flags().Int("finality-depth", config.FinalityDepth, "Enclosing anchors required for finality")
	cmd.Flags().Uint64("oes-interval", config.OESInterval, "Anchors between OES evolutions")
	cmd.Flags().Uint64("oes-window", config.OESWindow, "OES acceptance window W: how many epochs an entry's OES epoch may lag the current one")
	cmd.Flags().Uint32("min-replication-factor", config.MinReplicationFactor, "Lower bound on entry replication factor")
	cmd.Flags().Uint32("max-replication-factor", config.MaxReplicationFactor, "Upper bound on entry replication factor")
	cmd.Flags().Int("cache-size", config.CacheSize, "Number of items in the gossip history's LRU caches")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	viper.SetConfigName("ropenode")
	viper.AddConfigPath(config.DataDir)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	return viper.Unmarshal(config)
}

func runNode(cmd *cobra.Command, args []string) error {
	log := newLogger()

	identity, err := LoadOrCreateIdentity(config.Keyfile())
	if err != nil {
		return err
	}

	validators, err := LoadValidators(config.ValidatorsFile())
	if err != nil {
		return err
	}

	cfg := node.DefaultConfig()
	cfg.Identity = identity
	cfg.ChainID = config.ChainID
	cfg.ListenAddr = config.ListenAddr
	cfg.Bootstrap = config.Bootstrap
	cfg.AnchorInterval = config.AnchorInterval
	cfg.FinalityDepth = config.FinalityDepth
	cfg.OESInterval = config.OESInterval
	cfg.OESWindow = config.OESWindow
	cfg.MinReplicationFactor = config.MinReplicationFactor
	cfg.MaxReplicationFactor = config.MaxReplicationFactor
	cfg.CacheSize = config.CacheSize
	cfg.DataDir = config.DatabaseDir()
	cfg.Logger = log

	n, err := node.New(cfg, validators)
	if err != nil {
		return err
	}

	if err := n.Start(); err != nil {
		return err
	}

	log.WithField("addr", n.Addr()).Info("ropenode started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	return n.Close()
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Level = logLevel(config.LogLevel)
	logger.Formatter = new(prefixed.TextFormatter)

	pathMap := lfshook.PathMap{}
	if f, err := os.OpenFile(config.DataDir+"/ropenode.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
		f.Close()
		pathMap[logrus.InfoLevel] = config.DataDir + "/ropenode.log"
		pathMap[logrus.WarnLevel] = config.DataDir + "/ropenode.log"
		pathMap[logrus.ErrorLevel] = config.DataDir + "/ropenode.log"
	}
	if len(pathMap) > 0 {
		logger.Hooks.Add(lfshook.NewHook(pathMap, &logrus.TextFormatter{}))
	}

	return logger
}

func logLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}
