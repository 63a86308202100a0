// Package numeric cleans floating-point noise out of money and weight values
// before they reach the pricing arithmetic.
package numeric

import (
	"math"

	"github.com/shopspring/decimal"
)

// epsilon is the distance under which a float snaps to its nearest integer.
const epsilon = 1e-4

// CleanNumber snaps x to the nearest integer when it is within epsilon of it
// and otherwise rounds it to zero decimal places. NaN and infinities become 0.
func CleanNumber(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	if r := math.Round(x); math.Abs(x-r) < epsilon {
		return r
	}
	return decimal.NewFromFloat(x).Round(0).InexactFloat64()
}

// CleanCost returns x as a non-negative amount in minor currency units.
func CleanCost(x float64) int64 {
	return int64(math.Max(0, CleanNumber(x)))
}

// NonNegative returns x unrounded, with negatives, NaN and infinities
// mapped to 0.
func NonNegative(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
		return 0
	}
	return x
}

// CleanWeight rounds x to two decimal places. Negative weights are zero.
func CleanWeight(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
		return 0
	}
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

// SmartRoundCost rounds an amount to the nearest 0, 50 or 100 step of its
// hundred: a remainder up to 25 rounds down, up to 75 rounds to the half,
// anything above rounds up. Amounts below 100 are returned unchanged.
func SmartRoundCost(x int64) int64 {
	if x < 100 {
		return x
	}
	h := (x / 100) * 100
	switch r := x - h; {
	case r <= 25:
		return h
	case r <= 75:
		return h + 50
	default:
		return h + 100
	}
}

// SumCosts adds amounts after cleaning each of them.
func SumCosts(xs ...int64) int64 {
	total := decimal.Zero
	for _, x := range xs {
		if x > 0 {
			total = total.Add(decimal.NewFromInt(x))
		}
	}
	return total.IntPart()
}
