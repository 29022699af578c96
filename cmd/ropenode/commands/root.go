package commands

import (
	"github.com/spf13/cobra"
)

var config = NewDefaultCLIConfig()

// RootCmd is the root command for ropenode.
var RootCmd = &cobra.Command{
	Use:              "ropenode",
	Short:            "rope validator node",
	TraverseChildren: true,
}

func init() {
	RootCmd.AddCommand(NewRunCmd())
	RootCmd.AddCommand(NewKeygenCmd())
}
