// Package money holds the fixed-point rounding rules for the engine's single
// currency.
package money

import "github.com/shopspring/decimal"

// Places is the number of fractional digits kept for payable amounts. The
// target currency settles in whole units.
const Places int32 = 0

// Hundred is the percentage divisor.
var Hundred = decimal.NewFromInt(100)

// Round rounds d half away from zero to the currency granularity.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// FloorAtZero clamps negative values to zero.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Percent returns pct percent of d, unrounded.
func Percent(d, pct decimal.Decimal) decimal.Decimal {
	return d.Mul(pct).Div(Hundred)
}
