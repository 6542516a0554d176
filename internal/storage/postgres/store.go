package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/topup-engine/internal/domain/auth"
	"github.com/xenking/topup-engine/internal/domain/paymentmethod"
	"github.com/xenking/topup-engine/internal/domain/product"
	"github.com/xenking/topup-engine/internal/domain/voucher"
)

// Store groups the repositories sharing one pool.
type Store struct {
	Orders         *OrderRepository
	Vouchers       *VoucherRepository
	PaymentMethods *PaymentMethodRepository
	Products       *ProductRepository
	APIKeys        *APIKeyRepository
}

// NewStore returns a Store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Orders:         NewOrderRepository(pool),
		Vouchers:       NewVoucherRepository(pool),
		PaymentMethods: NewPaymentMethodRepository(pool),
		Products:       NewProductRepository(pool),
		APIKeys:        NewAPIKeyRepository(pool),
	}
}

func (s *Store) PutPaymentMethod(ctx context.Context, m paymentmethod.Method) error {
	return s.PaymentMethods.Upsert(ctx, m)
}

func (s *Store) PutProduct(ctx context.Context, p product.Product) error {
	return s.Products.Upsert(ctx, p)
}

func (s *Store) PutVoucher(ctx context.Context, v voucher.Voucher) error {
	return s.Vouchers.Upsert(ctx, v)
}

func (s *Store) PutAPIKey(ctx context.Context, info auth.APIKeyInfo) error {
	return s.APIKeys.Upsert(ctx, info)
}
