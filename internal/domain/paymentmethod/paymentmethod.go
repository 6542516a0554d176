// Package paymentmethod describes the payment channel rate table consumed by
// the order engine.
package paymentmethod

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/topup-engine/internal/domain/apperr"
	"github.com/xenking/topup-engine/internal/domain/pricing"
)

// ErrNotFound is returned when a payment method does not exist.
var ErrNotFound = apperr.New(apperr.KindNotFound, "payment method not found")

// Method is a payment channel with its fee formula and allowed amount range.
type Method struct {
	ID            int64
	Code          string
	Name          string
	FeePercentage decimal.Decimal
	FeeFixed      decimal.Decimal
	MinAmount     decimal.Decimal
	// MaxAmount of zero means no upper bound.
	MaxAmount decimal.Decimal
	IsActive  bool
}

// Fee returns the method's fee formula.
func (m *Method) Fee() pricing.Fee {
	return pricing.Fee{Percentage: m.FeePercentage, Fixed: m.FeeFixed}
}

// InRange reports whether amount lies within [MinAmount, MaxAmount].
func (m *Method) InRange(amount decimal.Decimal) bool {
	if amount.LessThan(m.MinAmount) {
		return false
	}
	if m.MaxAmount.IsPositive() && amount.GreaterThan(m.MaxAmount) {
		return false
	}
	return true
}

// Repository provides read access to payment methods.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Method, error)
}
