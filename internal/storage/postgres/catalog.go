package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/topup-engine/internal/domain/paymentmethod"
	"github.com/xenking/topup-engine/internal/domain/product"
)

const (
	getPaymentMethodSQL = `SELECT id, code, name, fee_percentage, fee_fixed, min_amount, max_amount, is_active
		FROM payment_methods WHERE id = $1`

	upsertPaymentMethodSQL = `INSERT INTO payment_methods
			(id, code, name, fee_percentage, fee_fixed, min_amount, max_amount, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code, name = EXCLUDED.name,
			fee_percentage = EXCLUDED.fee_percentage, fee_fixed = EXCLUDED.fee_fixed,
			min_amount = EXCLUDED.min_amount, max_amount = EXCLUDED.max_amount,
			is_active = EXCLUDED.is_active`

	getProductSQL = `SELECT id, game_id, name, price, is_active FROM products WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, game_id, name, price, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			game_id = EXCLUDED.game_id, name = EXCLUDED.name,
			price = EXCLUDED.price, is_active = EXCLUDED.is_active`
)

var (
	_ paymentmethod.Repository = (*PaymentMethodRepository)(nil)
	_ product.Repository       = (*ProductRepository)(nil)
)

// PaymentMethodRepository reads the payment method rate table.
type PaymentMethodRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentMethodRepository returns a PaymentMethodRepository that uses the given pool.
func NewPaymentMethodRepository(pool *pgxpool.Pool) *PaymentMethodRepository {
	return &PaymentMethodRepository{pool: pool}
}

// GetByID returns a payment method by id.
func (r *PaymentMethodRepository) GetByID(ctx context.Context, id int64) (*paymentmethod.Method, error) {
	var m paymentmethod.Method
	err := r.pool.QueryRow(ctx, getPaymentMethodSQL, id).Scan(
		&m.ID, &m.Code, &m.Name, &m.FeePercentage, &m.FeeFixed, &m.MinAmount, &m.MaxAmount, &m.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, paymentmethod.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get payment method %d", id)
	}
	return &m, nil
}

// Upsert inserts or replaces a payment method.
func (r *PaymentMethodRepository) Upsert(ctx context.Context, m paymentmethod.Method) error {
	_, err := r.pool.Exec(ctx, upsertPaymentMethodSQL,
		m.ID, m.Code, m.Name, m.FeePercentage, m.FeeFixed, m.MinAmount, m.MaxAmount, m.IsActive,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert payment method %s", m.Code)
	}
	return nil
}

// ProductRepository reads the product catalog.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	var p product.Product
	err := r.pool.QueryRow(ctx, getProductSQL, id).Scan(&p.ID, &p.GameID, &p.Name, &p.Price, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return &p, nil
}

// Upsert inserts or replaces a product.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.GameID, p.Name, p.Price, p.IsActive)
	if err != nil {
		return errors.Wrapf(err, "upsert product %d", p.ID)
	}
	return nil
}
