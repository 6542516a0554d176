package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/topup-engine/internal/domain/order"
)

const (
	orderColumns = `id, order_id, user_id, game_id, product_id, payment_method_id,
		player_id, server_id, amount, base_amount, discount_amount, fee_amount, voucher_code,
		status, payment_proof, proof_content_type, payment_expires_at,
		verified_by, verified_at, completed_at, notes, idempotency_key, request_hash, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (order_id, user_id, game_id, product_id, payment_method_id,
			player_id, server_id, amount, base_amount, discount_amount, fee_amount, voucher_code,
			status, payment_expires_at, idempotency_key, request_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, ''), $16, $17, $17)
		ON CONFLICT (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		RETURNING ` + orderColumns

	getOrderByIdempotencySQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 AND idempotency_key = $2`

	getOrderByOrderIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::bigint = 0 OR user_id = $1)
			AND ($2::text = '' OR CASE
				WHEN status = 'pending' AND payment_expires_at <= $4::timestamptz THEN 'failed'
				ELSE status
			END = $2)
		ORDER BY id DESC
		LIMIT NULLIF($3::int, 0)`

	// transitionOrderSQL is the single conditional write behind every
	// status change. $11 and $12 optionally bound the payment deadline.
	transitionOrderSQL = `UPDATE orders SET
			status = $3,
			updated_at = $4,
			payment_proof = COALESCE($5, payment_proof),
			proof_content_type = COALESCE($6, proof_content_type),
			verified_by = COALESCE($7, verified_by),
			verified_at = COALESCE($8, verified_at),
			completed_at = COALESCE($9, completed_at),
			notes = COALESCE($10, notes)
		WHERE order_id = $1 AND status = $2
			AND ($11::timestamptz IS NULL OR payment_expires_at > $11)
			AND ($12::timestamptz IS NULL OR payment_expires_at <= $12)
		RETURNING ` + orderColumns

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1)`

	expireOverdueSQL = `UPDATE orders SET status = 'failed', updated_at = $1, notes = $2
		WHERE id IN (
			SELECT id FROM orders
			WHERE status = 'pending' AND payment_expires_at <= $1
			ORDER BY payment_expires_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		) AND status = 'pending'
		RETURNING order_id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts o and redeems its voucher in one transaction. A repeated
// idempotency key returns the stored order untouched.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) (_ *order.Order, rerr error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, insertOrderSQL,
		o.OrderID, o.UserID, o.GameID, o.ProductID, o.PaymentMethodID,
		o.PlayerID, o.ServerID, o.Amount, o.BaseAmount, o.DiscountAmount, o.FeeAmount, o.VoucherCode,
		string(o.Status), o.PaymentExpiresAt, o.IdempotencyKey, o.RequestHash, o.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "insert order %q", o.OrderID)
	}
	created, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Idempotency key already used by this user.
		rows, err := tx.Query(ctx, getOrderByIdempotencySQL, o.UserID, o.IdempotencyKey)
		if err != nil {
			return nil, errors.Wrap(err, "get order by idempotency key")
		}
		existing, err := pgx.CollectExactlyOneRow(rows, scanOrder)
		if err != nil {
			return nil, errors.Wrap(err, "get order by idempotency key")
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, errors.Wrap(err, "commit")
		}
		return &existing, nil
	case err != nil:
		return nil, errors.Wrapf(err, "insert order %q", o.OrderID)
	}

	if o.VoucherCode != "" {
		if err := redeemVoucher(ctx, tx, o.VoucherCode); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return &created, nil
}

// Get returns the order addressed by ref.
func (r *OrderRepository) Get(ctx context.Context, ref order.Ref) (*order.Order, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if ref.OrderID != "" {
		rows, err = r.pool.Query(ctx, getOrderByOrderIDSQL, ref.OrderID)
	} else {
		rows, err = r.pool.Query(ctx, getOrderByIDSQL, ref.ID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", ref)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", ref)
	}
	return &o, nil
}

// FindByIdempotencyKey returns the order userID created with key.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIdempotencySQL, userID, key)
	if err != nil {
		return nil, errors.Wrap(err, "get order by idempotency key")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "get order by idempotency key")
	}
	return &o, nil
}

// List returns orders newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, f.UserID, string(f.Status), f.Limit, nullTime(f.At))
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return list, nil
}

// Transition applies t when the stored status still equals t.From and the
// deadline guards hold. A lost race yields order.ErrStaleState.
func (r *OrderRepository) Transition(ctx context.Context, orderID string, t order.Transition) (*order.Order, error) {
	var (
		proofData        []byte
		proofContentType *string
	)
	if t.Proof != nil {
		proofData = t.Proof.Data
		proofContentType = &t.Proof.ContentType
	}

	rows, err := r.pool.Query(ctx, transitionOrderSQL,
		orderID, string(t.From), string(t.To), t.At,
		proofData, proofContentType,
		t.VerifiedBy, t.VerifiedAt, t.CompletedAt, t.Notes,
		nullTime(t.OpenAt), nullTime(t.ClosedAt),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "transition order %q", orderID)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(err, "transition order %q", orderID)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, orderID).Scan(&exists); err != nil {
		return nil, errors.Wrapf(err, "check order %q", orderID)
	}
	if !exists {
		return nil, order.ErrNotFound
	}
	return nil, order.ErrStaleState
}

// ExpireOverdue fails up to limit overdue pending orders. Rows locked by a
// concurrent writer are skipped and picked up by a later call.
func (r *OrderRepository) ExpireOverdue(ctx context.Context, now time.Time, notes string, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, expireOverdueSQL, now, notes, limit)
	if err != nil {
		return nil, errors.Wrap(err, "expire overdue orders")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "expire overdue orders")
	}
	return ids, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o              order.Order
		status         string
		idempotencyKey *string
	)
	err := row.Scan(
		&o.ID, &o.OrderID, &o.UserID, &o.GameID, &o.ProductID, &o.PaymentMethodID,
		&o.PlayerID, &o.ServerID, &o.Amount, &o.BaseAmount, &o.DiscountAmount, &o.FeeAmount, &o.VoucherCode,
		&status, &o.PaymentProof, &o.ProofContentType, &o.PaymentExpiresAt,
		&o.VerifiedBy, &o.VerifiedAt, &o.CompletedAt, &o.Notes, &idempotencyKey, &o.RequestHash, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	if idempotencyKey != nil {
		o.IdempotencyKey = *idempotencyKey
	}
	return o, err
}
