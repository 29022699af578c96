package commands

import (
	"fmt"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/node"
	"github.com/spf13/cobra"
)

// NewKeygenCmd returns the command that materializes a fresh validator
// identity and a single-node validators.json naming it, following babble's
// keygen command (cmd/babble/commands/keygen.go).
func NewKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new validator identity",
		RunE:  keygen,
	}
}

func keygen(cmd *cobra.Command, args []string) error {
	kp, err := LoadOrCreateIdentity(config.Keyfile())
	if err != nil {
		return err
	}

	pub, err := crypto.MarshalHybridPublicKey(&kp.Public)
	if err != nil {
		return err
	}

	fmt.Println("PublicKey:", common.EncodeToString(pub))
	fmt.Println("Keyfile:", config.Keyfile())

	self := node.ValidatorInfo{PubKey: pub, Address: config.ListenAddr, Moniker: config.Moniker}
	if self.Moniker == "" {
		self.Moniker = "validator"
	}

	if err := SaveValidators(config.ValidatorsFile(), []node.ValidatorInfo{self}); err != nil {
		return err
	}
	fmt.Println("Validators file:", config.ValidatorsFile())

	return nil
}
