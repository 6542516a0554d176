package voucher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/topup-engine/internal/domain/apperr"
)

// DiscountType enumerates the supported voucher discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the amount, optionally capped.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixed takes a fixed value, capped at the amount.
	DiscountFixed DiscountType = "FIXED"
)

// Reason identifies why a voucher was rejected. The values are stable and
// surfaced to clients.
type Reason string

const (
	ReasonNotFound     Reason = "not_found"
	ReasonNotStarted   Reason = "not_started"
	ReasonExpired      Reason = "expired"
	ReasonBelowMinimum Reason = "below_minimum"
	ReasonLimitReached Reason = "limit_reached"
)

// ErrNotFound is returned by repositories when no voucher has the code.
var ErrNotFound = apperr.New(apperr.KindNotFound, "voucher not found")

// InvalidError reports a voucher that cannot be applied.
type InvalidError struct {
	Code   string
	Reason Reason
	// MinPurchase is set for ReasonBelowMinimum.
	MinPurchase decimal.Decimal
}

func (e *InvalidError) Error() string {
	switch e.Reason {
	case ReasonNotFound:
		return "voucher not found"
	case ReasonNotStarted:
		return "voucher is not yet valid"
	case ReasonExpired:
		return "voucher has expired"
	case ReasonBelowMinimum:
		return fmt.Sprintf("minimum purchase for this voucher is %s", e.MinPurchase.StringFixed(0))
	case ReasonLimitReached:
		return "voucher usage limit reached"
	default:
		return "invalid voucher"
	}
}

// Kind classifies every rejected voucher as user-correctable input.
func (e *InvalidError) Kind() apperr.Kind { return apperr.KindValidation }

// Voucher is a discount code from the voucher rate table.
type Voucher struct {
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	MinPurchase   decimal.Decimal
	// MaxDiscount caps percentage discounts when set.
	MaxDiscount *decimal.Decimal
	// UsageLimit bounds UsedCount when set.
	UsageLimit *int
	UsedCount  int
	StartDate  *time.Time
	EndDate    *time.Time
	IsActive   bool
}

// Result holds the computed discount for an amount.
type Result struct {
	Code        string
	Discount    decimal.Decimal
	FinalAmount decimal.Decimal
}

// Repository provides read access to the voucher table. Redemption happens in
// the order store so that it commits together with the order.
type Repository interface {
	// FindByCode returns the voucher with the given code, compared
	// case-insensitively, or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Voucher, error)
	// ListCodes returns every known code, normalized.
	ListCodes(ctx context.Context) ([]string, error)
}

// NormalizeCode returns the canonical form of a voucher code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
