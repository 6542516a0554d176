package voucher

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockVoucherRepo struct {
	voucher  *Voucher
	err      error
	codes    []string
	lookups  int
	lastCode string
}

func (m *mockVoucherRepo) FindByCode(_ context.Context, code string) (*Voucher, error) {
	m.lookups++
	m.lastCode = code
	return m.voucher, m.err
}

func (m *mockVoucherRepo) ListCodes(_ context.Context) ([]string, error) {
	return m.codes, m.err
}

func ptr[T any](v T) *T { return &v }

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name         string
		repo         *mockVoucherRepo
		amount       decimal.Decimal
		wantDiscount decimal.Decimal
		wantReason   Reason
	}{
		{
			name: "percentage without cap",
			repo: &mockVoucherRepo{voucher: &Voucher{
				Code: "TOPUP10", DiscountType: DiscountPercentage,
				DiscountValue: decimal.NewFromInt(10), IsActive: true,
			}},
			amount:       decimal.NewFromInt(100000),
			wantDiscount: decimal.NewFromInt(10000),
		},
		{
			name: "unknown code",
			repo: &mockVoucherRepo{err: ErrNotFound},
			amount:     decimal.NewFromInt(100000),
			wantReason: ReasonNotFound,
		},
		{
			name: "inactive voucher reads as not found",
			repo: &mockVoucherRepo{voucher: &Voucher{
				Code: "OFF", DiscountType: DiscountFixed,
				DiscountValue: decimal.NewFromInt(5000), IsActive: false,
			}},
			amount:     decimal.NewFromInt(100000),
			wantReason: ReasonNotFound,
		},
		{
			name: "not started",
			repo: &mockVoucherRepo{voucher: &Voucher{
				Code: "SOON", DiscountType: DiscountFixed,
				DiscountValue: decimal.NewFromInt(5000), StartDate: &future, IsActive: true,
			}},
			amount:     decimal.NewFromInt(100000),
			wantReason: ReasonNotStarted,
		},
		{
			name: "expired",
			repo: &mockVoucherRepo{voucher: &Voucher{
				Code: "OLD", DiscountType: DiscountFixed,
				DiscountValue: decimal.NewFromInt(5000), EndDate: &past, IsActive: true,
			}},
			amount:     decimal.NewFromInt(100000),
			wantReason: ReasonExpired,
		},
		{
			name: "inside window",
			repo: &mockVoucherRepo{voucher: &Voucher{
				Code: "NOW", DiscountType: DiscountFixed,
				DiscountValue: decimal.NewFromInt(5000), StartDate: &past, EndDate: &future, IsActive: true,
			}},
			amount:       decimal.NewFromInt(100000),
			wantDiscount: decimal.NewFromInt(5000),
		},
		{
			name: "below minimum purchase",
			repo: &mockVoucherRepo{voucher: &Voucher{
				Code: "BIG", DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(5),
				MinPurchase: decimal.NewFromInt(200000), IsActive: true,
			}},
			amount:     decimal.NewFromInt(100000),
			wantReason: ReasonBelowMinimum,
		},
		{
			name: "usage limit exhausted",
			repo: &mockVoucherRepo{voucher: &Voucher{
				Code: "LIMITED", DiscountType: DiscountFixed, DiscountValue: decimal.NewFromInt(1000),
				UsageLimit: ptr(50), UsedCount: 50, IsActive: true,
			}},
			amount:     decimal.NewFromInt(100000),
			wantReason: ReasonLimitReached,
		},
		{
			name: "usage under limit",
			repo: &mockVoucherRepo{voucher: &Voucher{
				Code: "ROOM", DiscountType: DiscountFixed, DiscountValue: decimal.NewFromInt(1000),
				UsageLimit: ptr(50), UsedCount: 49, IsActive: true,
			}},
			amount:       decimal.NewFromInt(100000),
			wantDiscount: decimal.NewFromInt(1000),
		},
		{
			name: "expiry is checked before minimum purchase",
			repo: &mockVoucherRepo{voucher: &Voucher{
				Code: "BOTH", DiscountType: DiscountFixed, DiscountValue: decimal.NewFromInt(1000),
				MinPurchase: decimal.NewFromInt(500000), EndDate: &past, IsActive: true,
			}},
			amount:     decimal.NewFromInt(100000),
			wantReason: ReasonExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), " topup10 ", tt.amount)

			if tt.wantReason != "" {
				var invalid *InvalidError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, tt.wantReason, invalid.Reason)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.wantDiscount.Equal(got.Discount),
				"expected discount %s, got %s", tt.wantDiscount, got.Discount)
			assert.True(t, tt.amount.Sub(tt.wantDiscount).Equal(got.FinalAmount))
			assert.Equal(t, "TOPUP10", tt.repo.lastCode)
		})
	}
}

func TestRepoValidator_LookupError(t *testing.T) {
	v := NewRepoValidator(&mockVoucherRepo{err: errors.New("db error")})

	_, err := v.Validate(context.Background(), "ANY", decimal.NewFromInt(1000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup voucher")

	var invalid *InvalidError
	assert.False(t, errors.As(err, &invalid))
}

func TestInvalidError_Messages(t *testing.T) {
	assert.Equal(t, "voucher has expired", (&InvalidError{Reason: ReasonExpired}).Error())
	assert.Equal(t, "voucher usage limit reached", (&InvalidError{Reason: ReasonLimitReached}).Error())
	assert.Equal(t, "minimum purchase for this voucher is 50000",
		(&InvalidError{Reason: ReasonBelowMinimum, MinPurchase: decimal.NewFromInt(50000)}).Error())
}
