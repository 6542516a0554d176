package voucher

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name         string
		voucher      *Voucher
		amount       decimal.Decimal
		wantDiscount decimal.Decimal
	}{
		{
			name:         "percentage 10% no cap",
			voucher:      &Voucher{DiscountType: DiscountPercentage, DiscountValue: d("10")},
			amount:       d("100000"),
			wantDiscount: d("10000"),
		},
		{
			name:         "percentage capped by max discount",
			voucher:      &Voucher{DiscountType: DiscountPercentage, DiscountValue: d("50"), MaxDiscount: ptr(d("15000"))},
			amount:       d("100000"),
			wantDiscount: d("15000"),
		},
		{
			name:         "percentage below cap",
			voucher:      &Voucher{DiscountType: DiscountPercentage, DiscountValue: d("5"), MaxDiscount: ptr(d("15000"))},
			amount:       d("100000"),
			wantDiscount: d("5000"),
		},
		{
			name:         "percentage rounds to whole units",
			voucher:      &Voucher{DiscountType: DiscountPercentage, DiscountValue: d("12.5")},
			amount:       d("10005"),
			wantDiscount: d("1251"),
		},
		{
			name:         "percentage with fractional cap stays under cap",
			voucher:      &Voucher{DiscountType: DiscountPercentage, DiscountValue: d("50"), MaxDiscount: ptr(d("999.5"))},
			amount:       d("100000"),
			wantDiscount: d("999"),
		},
		{
			name:         "fixed below amount",
			voucher:      &Voucher{DiscountType: DiscountFixed, DiscountValue: d("7500")},
			amount:       d("100000"),
			wantDiscount: d("7500"),
		},
		{
			name:         "fixed capped at amount",
			voucher:      &Voucher{DiscountType: DiscountFixed, DiscountValue: d("100000")},
			amount:       d("50000"),
			wantDiscount: d("50000"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.voucher, tt.amount)
			require.NoError(t, err)

			assert.True(t, tt.wantDiscount.Equal(got.Discount), "want %s, got %s", tt.wantDiscount, got.Discount)
			assert.True(t, tt.amount.Sub(tt.wantDiscount).Equal(got.FinalAmount))
			assert.False(t, got.FinalAmount.IsNegative())
		})
	}
}

func TestApply_UnsupportedType(t *testing.T) {
	_, err := Apply(&Voucher{DiscountType: "BOGO"}, d("100"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported discount type")
}

func TestApply_NeverExceedsBounds(t *testing.T) {
	caps := []decimal.Decimal{d("0.5"), d("1"), d("999"), d("999.5"), d("20000"), d("20000.99")}
	for _, amount := range []decimal.Decimal{d("1"), d("1000"), d("77777"), d("1000000")} {
		for _, pct := range []decimal.Decimal{d("1"), d("33.3"), d("100")} {
			for _, c := range caps {
				got, err := Apply(&Voucher{DiscountType: DiscountPercentage, DiscountValue: pct, MaxDiscount: &c}, amount)
				require.NoError(t, err)
				assert.True(t, got.Discount.LessThanOrEqual(c))
			}
		}
		for _, fixed := range []decimal.Decimal{d("0"), d("500"), d("5000000")} {
			got, err := Apply(&Voucher{DiscountType: DiscountFixed, DiscountValue: fixed}, amount)
			require.NoError(t, err)
			assert.True(t, got.Discount.LessThanOrEqual(amount))
		}
	}
}
