package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/topup-engine/internal/domain/apperr"
)

// Sentinel errors of the order engine.
var (
	ErrNotFound              = apperr.New(apperr.KindNotFound, "order not found")
	ErrNotOwner              = apperr.New(apperr.KindAuthorization, "order belongs to another user")
	ErrNotAuthorized         = apperr.New(apperr.KindAuthorization, "caller is not allowed to verify orders")
	ErrPaymentMethodInactive = apperr.New(apperr.KindValidation, "payment method is not active")
	ErrInvalidTarget         = apperr.New(apperr.KindValidation, "verification target must be completed or failed")
	ErrMissingGame           = apperr.New(apperr.KindValidation, "game is required")
	ErrMissingPlayer         = apperr.New(apperr.KindValidation, "player id is required")
	ErrProductMismatch       = apperr.New(apperr.KindValidation, "product does not belong to the game")
	ErrProductInactive       = apperr.New(apperr.KindValidation, "product is not available")
	ErrIdempotencyMismatch   = apperr.New(apperr.KindValidation, "idempotency key was used with a different request")

	// ErrStateConflict matches every StateConflictError.
	ErrStateConflict = apperr.New(apperr.KindStateConflict, "order state conflict")
	// ErrOrderNotPending matches StateConflictErrors that expected pending.
	ErrOrderNotPending = apperr.New(apperr.KindStateConflict, "order not pending")

	// ErrStaleState is returned by repositories when a conditional update
	// found the row in another state.
	ErrStaleState = errors.New("order state changed concurrently")
)

// StateConflictError reports a transition attempted from the wrong state.
type StateConflictError struct {
	OrderID  string
	Expected Status
	Actual   Status
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("order %s not %s: currently %s", e.OrderID, e.Expected, e.Actual)
}

// Kind implements apperr classification.
func (e *StateConflictError) Kind() apperr.Kind { return apperr.KindStateConflict }

// Is matches ErrStateConflict, and ErrOrderNotPending when pending was expected.
func (e *StateConflictError) Is(target error) bool {
	switch target {
	case ErrStateConflict:
		return true
	case ErrOrderNotPending:
		return e.Expected == StatusPending
	default:
		return false
	}
}

// AmountOutOfRangeError reports a pre-fee amount outside the payment
// method's limits.
type AmountOutOfRangeError struct {
	Amount decimal.Decimal
	Min    decimal.Decimal
	Max    decimal.Decimal
}

func (e *AmountOutOfRangeError) Error() string {
	if e.Max.IsPositive() {
		return fmt.Sprintf("amount %s outside allowed range %s to %s",
			e.Amount.StringFixed(0), e.Min.StringFixed(0), e.Max.StringFixed(0))
	}
	return fmt.Sprintf("amount %s below minimum %s", e.Amount.StringFixed(0), e.Min.StringFixed(0))
}

// Kind implements apperr classification.
func (e *AmountOutOfRangeError) Kind() apperr.Kind { return apperr.KindValidation }

// InvalidArtifactError reports a payment proof that failed the integrity check.
type InvalidArtifactError struct {
	Reason string
}

func (e *InvalidArtifactError) Error() string {
	return "invalid payment proof: " + e.Reason
}

// Kind implements apperr classification.
func (e *InvalidArtifactError) Kind() apperr.Kind { return apperr.KindValidation }
