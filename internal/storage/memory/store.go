package memory

import (
	"context"

	"github.com/xenking/topup-engine/internal/domain/auth"
	"github.com/xenking/topup-engine/internal/domain/paymentmethod"
	"github.com/xenking/topup-engine/internal/domain/product"
	"github.com/xenking/topup-engine/internal/domain/voucher"
)

// Store groups the in-memory tables.
type Store struct {
	Orders         *Orders
	Vouchers       *Vouchers
	PaymentMethods *PaymentMethods
	Products       *Products
	APIKeys        *APIKeys
}

// NewStore returns an empty Store.
func NewStore() *Store {
	vouchers := NewVouchers()
	return &Store{
		Orders:         NewOrders(vouchers),
		Vouchers:       vouchers,
		PaymentMethods: NewPaymentMethods(),
		Products:       NewProducts(),
		APIKeys:        NewAPIKeys(),
	}
}

func (s *Store) PutPaymentMethod(_ context.Context, m paymentmethod.Method) error {
	s.PaymentMethods.Put(m)
	return nil
}

func (s *Store) PutProduct(_ context.Context, p product.Product) error {
	s.Products.Put(p)
	return nil
}

func (s *Store) PutVoucher(_ context.Context, v voucher.Voucher) error {
	s.Vouchers.Put(v)
	return nil
}

func (s *Store) PutAPIKey(_ context.Context, info auth.APIKeyInfo) error {
	s.APIKeys.Put(info)
	return nil
}
