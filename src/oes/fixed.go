// Package oes implements the organic encryption state: the genome, its
// deterministic chaotic dynamics, the anchor-cadence evolution step, and
// the network commitment agreement that rotates hybrid key material
// (spec.md §4.5).
package oes

import "math/bits"

// fixedScale is the number of fractional bits in a Fixed value (Q32.32).
// spec.md §9 flags the chaotic dynamics' floating-point path as a
// cross-platform hazard; SPEC_FULL resolves it by using fixed-point
// arithmetic exclusively so every validator's binary, on any platform,
// produces bit-identical per-step state.
const fixedScale = 32

// Fixed is a signed Q32.32 fixed-point number.
type Fixed int64

// FixedFromInt promotes an integer to Fixed.
func FixedFromInt(i int64) Fixed {
	return Fixed(i << fixedScale)
}

// FixedFromFraction builds Fixed(num/den), den != 0.
func FixedFromFraction(num, den int64) Fixed {
	return Fixed((num << fixedScale) / den)
}

// Add returns f + g.
func (f Fixed) Add(g Fixed) Fixed { return f + g }

// Sub returns f - g.
func (f Fixed) Sub(g Fixed) Fixed { return f - g }

// Neg returns -f.
func (f Fixed) Neg() Fixed { return -f }

// Mul returns f * g, rounded toward zero, computed via a 128-bit
// intermediate product so the result is exact regardless of GOARCH.
func (f Fixed) Mul(g Fixed) Fixed {
	return Fixed(mulFixed(int64(f), int64(g)))
}

func mulFixed(a, b int64) int64 {
	neg := false
	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		neg = !neg
		ua = uint64(-a)
	}
	if b < 0 {
		neg = !neg
		ub = uint64(-b)
	}
	hi, lo := bits.Mul64(ua, ub)
	res := (hi << (64 - fixedScale)) | (lo >> fixedScale)
	if neg {
		return -int64(res)
	}
	return int64(res)
}

// Clamp bounds f to [-limit, limit].
func (f Fixed) Clamp(limit Fixed) Fixed {
	if f > limit {
		return limit
	}
	if f < -limit {
		return -limit
	}
	return f
}

// Int64 truncates f to its integer part.
func (f Fixed) Int64() int64 {
	return int64(f) >> fixedScale
}
