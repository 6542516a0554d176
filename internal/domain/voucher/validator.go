package voucher

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator validates a voucher code against an amount and returns the
// computed discount.
type Validator interface {
	Validate(ctx context.Context, code string, amount decimal.Decimal) (*Result, error)
}

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate runs the eligibility checks in order and stops at the first
// failure: existence and activity, validity window, minimum purchase, usage
// limit. It never redeems the voucher.
func (v *RepoValidator) Validate(ctx context.Context, code string, amount decimal.Decimal) (*Result, error) {
	code = NormalizeCode(code)

	vc, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &InvalidError{Code: code, Reason: ReasonNotFound}
		}
		return nil, errors.Wrap(err, "lookup voucher")
	}
	if !vc.IsActive {
		return nil, &InvalidError{Code: code, Reason: ReasonNotFound}
	}

	now := v.now()
	if vc.StartDate != nil && now.Before(*vc.StartDate) {
		return nil, &InvalidError{Code: code, Reason: ReasonNotStarted}
	}
	if vc.EndDate != nil && now.After(*vc.EndDate) {
		return nil, &InvalidError{Code: code, Reason: ReasonExpired}
	}

	if amount.LessThan(vc.MinPurchase) {
		return nil, &InvalidError{Code: code, Reason: ReasonBelowMinimum, MinPurchase: vc.MinPurchase}
	}

	if vc.UsageLimit != nil && vc.UsedCount >= *vc.UsageLimit {
		return nil, &InvalidError{Code: code, Reason: ReasonLimitReached}
	}

	res, err := Apply(vc, amount)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
