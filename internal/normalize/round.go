package normalize

import (
	"math"

	"github.com/shopspring/decimal"
)

// roundUpAbove is the third-decimal digit a value must exceed to round up
const roundUpAbove = 5

var hundredth = decimal.New(1, -2)

// Round2 truncates x to two decimals and bumps the second decimal by one
// unit only when the truncated third decimal digit is strictly greater than 5.
// Digits past the third are ignored, so 7.125 and 7.1259 both give 7.12
// while 7.126 gives 7.13. Negative inputs are handled on their magnitude.
//
// The computation runs on the shortest decimal representation of x, which
// keeps binary artefacts such as 11.600000000000001 from reaching the digit test.
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}

	d := decimal.NewFromFloat(x)
	neg := d.IsNegative()
	d = d.Abs()

	truncated := d.Truncate(2)
	third := d.Truncate(3).Sub(truncated).Shift(3).IntPart()
	if third > roundUpAbove {
		truncated = truncated.Add(hundredth)
	}
	if neg {
		truncated = truncated.Neg()
	}

	f, _ := truncated.Float64()
	return f
}

// RoundHalf2 is conventional half-away-from-zero rounding to two decimals,
// used where the provider-specific rule does not apply.
func RoundHalf2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	f, _ := decimal.NewFromFloat(x).Round(2).Float64()
	return f
}
