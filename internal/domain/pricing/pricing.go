// Package pricing computes the payable total of an order from its base amount,
// an already-capped voucher discount and the payment method's fee formula.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/topup-engine/internal/domain/apperr"
	"github.com/xenking/topup-engine/internal/domain/money"
)

// ErrInvalidAmount is returned when the base amount is not positive.
var ErrInvalidAmount = apperr.New(apperr.KindValidation, "amount must be greater than 0")

// Fee is the fee formula of a payment method.
type Fee struct {
	Percentage decimal.Decimal
	Fixed      decimal.Decimal
}

// Quote is the breakdown of a payable amount.
type Quote struct {
	Base       decimal.Decimal
	Discount   decimal.Decimal
	Discounted decimal.Decimal
	Fee        decimal.Decimal
	Total      decimal.Decimal
}

// Calculate derives the fee-inclusive total. It is pure: identical inputs
// always produce an identical Quote.
func Calculate(base, discount decimal.Decimal, fee Fee) (Quote, error) {
	if !base.IsPositive() {
		return Quote{}, ErrInvalidAmount
	}

	discount = money.FloorAtZero(discount)
	discounted := money.FloorAtZero(base.Sub(discount))

	raw := money.Percent(discounted, fee.Percentage).Add(fee.Fixed)
	total := money.Round(discounted.Add(raw))

	// Discounted never exceeds total even for a negative fee table entry.
	if total.LessThan(discounted) {
		total = discounted
	}

	return Quote{
		Base:       base,
		Discount:   decimal.Min(discount, base),
		Discounted: discounted,
		Fee:        total.Sub(discounted),
		Total:      total,
	}, nil
}
