package crypto

import "github.com/KazeONGUENE/rope/src/common"

// InvalidPublicKey wraps common.Error for malformed or empty public keys.
func InvalidPublicKey(subject, detail string) error {
	return common.NewError(common.InvalidPublicKey, subject, detail)
}

// InvalidSignature wraps common.Error for signatures that fail verification
// or are structurally malformed (truncated, wrong length prefix, etc).
func InvalidSignature(subject, detail string) error {
	return common.NewError(common.InvalidSignature, subject, detail)
}

// DecryptionError wraps common.Error for decapsulation/decryption failures.
func DecryptionError(subject, detail string) error {
	return common.NewError(common.DecryptionError, subject, detail)
}
