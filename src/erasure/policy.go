// Package erasure implements the controlled-erasure protocol (spec.md
// §4.7): policy checks, quorum co-signing over an erasure record, and
// applying an admitted record to the graph as a tombstone.
package erasure

import "github.com/KazeONGUENE/rope/src/entry"

// Role identifies who is entitled to authorize a given erasure Reason
// (spec.md §4.7: "each reason has a distinct authorizer role"). The core
// only names the roles; deciding whether a particular hybrid identity holds
// one is the external policy collaborator's job (Authorizer).
type Role int

const (
	RoleDataProtectionOfficer Role = iota
	RoleOwner
	RolePolicyEngine
	RoleLegalCounsel
)

// RoleFor maps an erasure Reason to the role entitled to authorize it.
func RoleFor(reason entry.ErasureReason) Role {
	switch reason {
	case entry.ReasonOwnerInitiated:
		return RoleOwner
	case entry.ReasonPolicyTTL:
		return RolePolicyEngine
	case entry.ReasonExternalLegalOrder:
		return RoleLegalCounsel
	default:
		return RoleDataProtectionOfficer
	}
}

// Authorizer is the external policy collaborator that knows whether a given
// hybrid-key-identified party holds a role over a target entry (spec.md §6:
// policy decisions are named as an external collaborator, out of core
// scope).
type Authorizer interface {
	HasRole(authorizerPubKey []byte, role Role, target entry.ID) bool
}

// permitsReason reports whether target's mutability class allows reason at
// all, independent of who is asking (spec.md §4.7 step 2). Immutable never
// permits erasure; regulatory right-to-erasure reaches any erasable class,
// the other three reasons are each tied to the one class they name.
func permitsReason(class entry.MutabilityClass, reason entry.ErasureReason) bool {
	if class == entry.Immutable {
		return false
	}
	switch reason {
	case entry.ReasonRegulatoryRightToErasure:
		return true
	case entry.ReasonOwnerInitiated:
		return class == entry.OwnerErasable
	case entry.ReasonPolicyTTL:
		return class == entry.TtlErasable
	case entry.ReasonExternalLegalOrder:
		return class == entry.PolicyErasable
	default:
		return false
	}
}
