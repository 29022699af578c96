package regen

import (
	"time"

	"github.com/KazeONGUENE/rope/src/entry"
)

// Severity buckets the base urgency a damage Class starts a repair job at,
// before age and content criticality scale it (spec.md §4.6).
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// BaseSeverity maps a damage Class to its starting Severity.
func BaseSeverity(c Class) Severity {
	switch c {
	case SingleAtomCorruption:
		return SeverityLow
	case ContiguousSegmentCorruption, MismatchError:
		return SeverityMedium
	case SevereCorruption:
		return SeverityHigh
	case TotalLoss:
		return SeverityCritical
	default:
		return SeverityLow
	}
}

func base(s Severity) float64 {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 8
	default:
		return 1
	}
}

// ageFactor grows linearly with how long an entry has sat damaged, so a
// long-queued repair is not starved by a constant stream of fresher damage
// reports competing for the same repair workers.
func ageFactor(age time.Duration) float64 {
	hours := age.Hours()
	if hours < 0 {
		hours = 0
	}
	return 1 + hours/24
}

// criticality weighs an entry's role: anchors and attestations outrank
// ordinary user entries (spec.md §4.6).
func criticality(kind entry.ContentKind, isAnchor bool) float64 {
	switch {
	case isAnchor:
		return 4
	case kind == entry.KindAttestation:
		return 3
	default:
		return 1
	}
}

// Priority computes the repair-ordering score of a damaged entry, higher
// values serviced first: base(severity) x age_factor x criticality(kind)
// (spec.md §4.6).
func Priority(class Class, age time.Duration, kind entry.ContentKind, isAnchor bool) float64 {
	return base(BaseSeverity(class)) * ageFactor(age) * criticality(kind, isAnchor)
}
