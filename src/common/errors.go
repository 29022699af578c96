package common

import "fmt"

// Kind enumerates the error taxonomy of the core protocol stack. Every error
// that crosses a subsystem boundary is a typed Error carrying one of these
// kinds, never a bare errors.New string.
type Kind int

const (
	// NotFound means the requested id is unknown locally.
	NotFound Kind = iota
	// Erased means the id is tombstoned.
	Erased
	// ParentMissing means the entry is structurally valid but its ancestry
	// is absent; the entry should be quarantined and its parents pulled.
	ParentMissing
	// InvalidSignature means hybrid verification failed (either component).
	InvalidSignature
	// EpochOutOfWindow means oes_epoch is outside [current-W, current].
	EpochOutOfWindow
	// ClockRegression means clock.counter did not strictly increase.
	ClockRegression
	// CircularParentage means the entry's ancestry contains a cycle.
	CircularParentage
	// OversizeContent means content exceeds the maximum entry size.
	OversizeContent
	// QuorumNotMet means a required supermajority was not observed.
	QuorumNotMet
	// RegenerationFailed means too few shards survived to reconstruct.
	RegenerationFailed
	// InsufficientPeers means a topic's gossip mesh is below its minimum.
	InsufficientPeers
	// Unauthorized means the policy collaborator refused the operation.
	Unauthorized
	// StorageFull means the storage backend is out of space.
	StorageFull
	// NetworkPartition means no quorum is reachable.
	NetworkPartition
	// InvalidPublicKey means a public key failed structural validation.
	InvalidPublicKey
	// DecryptionError means decapsulation or decryption failed.
	DecryptionError
	// KeyAlreadyExists means a Put would overwrite an existing immutable key.
	KeyAlreadyExists
	// ParentRequired means a non-genesis entry declared zero parents.
	ParentRequired
)

var kindNames = map[Kind]string{
	NotFound:           "NotFound",
	Erased:             "Erased",
	ParentMissing:      "ParentMissing",
	InvalidSignature:   "InvalidSignature",
	EpochOutOfWindow:   "EpochOutOfWindow",
	ClockRegression:    "ClockRegression",
	CircularParentage:  "CircularParentage",
	OversizeContent:    "OversizeContent",
	QuorumNotMet:       "QuorumNotMet",
	RegenerationFailed: "RegenerationFailed",
	InsufficientPeers:  "InsufficientPeers",
	Unauthorized:       "Unauthorized",
	StorageFull:        "StorageFull",
	NetworkPartition:   "NetworkPartition",
	InvalidPublicKey:   "InvalidPublicKey",
	DecryptionError:    "DecryptionError",
	KeyAlreadyExists:   "KeyAlreadyExists",
	ParentRequired:     "ParentRequired",
}

// String implements Stringer for Kind.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// Error is the typed error carried across subsystem boundaries.
type Error struct {
	Kind    Kind
	Subject string // the id, key, or participant the error concerns
	Detail  string
}

// NewError creates a new typed Error.
func NewError(kind Kind, subject, detail string) Error {
	return Error{Kind: kind, Subject: subject, Detail: detail}
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Subject)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Subject, e.Detail)
}

// Is reports whether err is an Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(Error)
	return ok && e.Kind == kind
}
