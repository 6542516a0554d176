package voucher

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/topup-engine/internal/domain/money"
)

// Apply calculates the discount v grants on amount. It does not check
// eligibility; see Validator.
func Apply(v *Voucher, amount decimal.Decimal) (Result, error) {
	var discount decimal.Decimal

	switch v.DiscountType {
	case DiscountPercentage:
		discount = money.Round(money.Percent(amount, v.DiscountValue))
		if v.MaxDiscount != nil {
			// Round the cap down so a fractional cap is never exceeded.
			discount = decimal.Min(discount, v.MaxDiscount.RoundFloor(money.Places))
		}
	case DiscountFixed:
		discount = money.Round(v.DiscountValue)
	default:
		return Result{}, errors.Errorf("unsupported discount type: %q", v.DiscountType)
	}

	discount = decimal.Min(money.FloorAtZero(discount), money.FloorAtZero(amount))

	return Result{
		Code:        v.Code,
		Discount:    discount,
		FinalAmount: amount.Sub(discount),
	}, nil
}
