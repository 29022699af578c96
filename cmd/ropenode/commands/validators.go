package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/node"
)

// jsonValidator is validators.json's on-disk shape: a hex-encoded marshaled
// hybrid public key alongside the address and moniker, mirroring babble's
// JSONPeers file format (src/peers/json_peers.go) adapted to this core's
// hybrid keys instead of a single ECDSA public key.
type jsonValidator struct {
	PubKeyHex string `json:"pub_key"`
	Address   string `json:"address"`
	Moniker   string `json:"moniker"`
}

// LoadValidators reads a validators.json file into the ValidatorInfo slice
// node.New expects. A missing file is not an error: a founding node with no
// validators.json yet runs as the sole member of its own validator set.
func LoadValidators(path string) ([]node.ValidatorInfo, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("commands: read validators file: %w", err)
	}

	var raw []jsonValidator
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("commands: parse validators file: %w", err)
	}

	out := make([]node.ValidatorInfo, 0, len(raw))
	for _, v := range raw {
		pub, err := common.DecodeFromString(v.PubKeyHex)
		if err != nil {
			return nil, fmt.Errorf("commands: decode validator %q public key: %w", v.Moniker, err)
		}
		out = append(out, node.ValidatorInfo{PubKey: pub, Address: v.Address, Moniker: v.Moniker})
	}
	return out, nil
}

// SaveValidators writes validators back to path in the same format
// LoadValidators reads, used by the keygen command to seed a fresh
// single-node validators.json.
func SaveValidators(path string, validators []node.ValidatorInfo) error {
	raw := make([]jsonValidator, 0, len(validators))
	for _, v := range validators {
		raw = append(raw, jsonValidator{
			PubKeyHex: common.EncodeToString(v.PubKey),
			Address:   v.Address,
			Moniker:   v.Moniker,
		})
	}
	buf, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}
