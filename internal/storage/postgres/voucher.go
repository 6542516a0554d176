package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/topup-engine/internal/domain/voucher"
)

const (
	voucherColumns = `code, discount_type, discount_value, min_purchase, max_discount,
		usage_limit, used_count, start_date, end_date, is_active`

	getVoucherByCodeSQL = `SELECT ` + voucherColumns + `
		FROM vouchers WHERE UPPER(code) = UPPER($1)`

	listVoucherCodesSQL = `SELECT UPPER(code) FROM vouchers ORDER BY 1`

	// redeemVoucherSQL consumes one use only while the limit allows it.
	redeemVoucherSQL = `UPDATE vouchers SET used_count = used_count + 1
		WHERE UPPER(code) = UPPER($1) AND is_active = TRUE
			AND (usage_limit IS NULL OR used_count < usage_limit)`

	upsertVoucherSQL = `INSERT INTO vouchers (` + voucherColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type, discount_value = EXCLUDED.discount_value,
			min_purchase = EXCLUDED.min_purchase, max_discount = EXCLUDED.max_discount,
			usage_limit = EXCLUDED.usage_limit, start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date, is_active = EXCLUDED.is_active`
)

var _ voucher.Repository = (*VoucherRepository)(nil)

// VoucherRepository implements voucher.Repository backed by PostgreSQL.
type VoucherRepository struct {
	pool *pgxpool.Pool
}

// NewVoucherRepository returns a VoucherRepository that uses the given pool.
func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{pool: pool}
}

// FindByCode looks up a voucher by its code (case-insensitive).
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*voucher.Voucher, error) {
	rows, err := r.pool.Query(ctx, getVoucherByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find voucher %q", code)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVoucher)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, voucher.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find voucher %q", code)
	}
	return &v, nil
}

// ListCodes returns every voucher code, upper-cased.
func (r *VoucherRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listVoucherCodesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list voucher codes")
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Upsert inserts or replaces a voucher definition. The usage counter of an
// existing voucher is kept.
func (r *VoucherRepository) Upsert(ctx context.Context, v voucher.Voucher) error {
	_, err := r.pool.Exec(ctx, upsertVoucherSQL,
		voucher.NormalizeCode(v.Code), string(v.DiscountType), v.DiscountValue, v.MinPurchase, v.MaxDiscount,
		v.UsageLimit, v.UsedCount, v.StartDate, v.EndDate, v.IsActive,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert voucher %s", v.Code)
	}
	return nil
}

// redeemVoucher consumes one use of code inside q.
func redeemVoucher(ctx context.Context, q querier, code string) error {
	tag, err := q.Exec(ctx, redeemVoucherSQL, code)
	if err != nil {
		return errors.Wrapf(err, "redeem voucher %q", code)
	}
	if tag.RowsAffected() == 0 {
		return &voucher.InvalidError{Code: voucher.NormalizeCode(code), Reason: voucher.ReasonLimitReached}
	}
	return nil
}

func scanVoucher(row pgx.CollectableRow) (voucher.Voucher, error) {
	var (
		v            voucher.Voucher
		discountType string
		maxDiscount  *decimal.Decimal
		usageLimit   *int32
		usedCount    int32
		startDate    *time.Time
		endDate      *time.Time
	)
	err := row.Scan(
		&v.Code, &discountType, &v.DiscountValue, &v.MinPurchase, &maxDiscount,
		&usageLimit, &usedCount, &startDate, &endDate, &v.IsActive,
	)
	v.Code = voucher.NormalizeCode(v.Code)
	v.DiscountType = voucher.DiscountType(discountType)
	v.MaxDiscount = maxDiscount
	if usageLimit != nil {
		limit := int(*usageLimit)
		v.UsageLimit = &limit
	}
	v.UsedCount = int(usedCount)
	v.StartDate = startDate
	v.EndDate = endDate
	return v, err
}
