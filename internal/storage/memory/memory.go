// Package memory provides in-process implementations of the engine's
// repositories. Every table is guarded by its own mutex, which gives the
// order table the same compare-and-swap semantics as the PostgreSQL store
// within one process.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xenking/topup-engine/internal/domain/auth"
	"github.com/xenking/topup-engine/internal/domain/paymentmethod"
	"github.com/xenking/topup-engine/internal/domain/product"
	"github.com/xenking/topup-engine/internal/domain/voucher"
)

// Vouchers is an in-memory voucher table.
type Vouchers struct {
	mu   sync.Mutex
	rows map[string]voucher.Voucher
}

var _ voucher.Repository = (*Vouchers)(nil)

// NewVouchers returns an empty voucher table.
func NewVouchers() *Vouchers {
	return &Vouchers{rows: make(map[string]voucher.Voucher)}
}

// Put inserts or replaces v.
func (s *Vouchers) Put(v voucher.Voucher) {
	v.Code = voucher.NormalizeCode(v.Code)
	s.mu.Lock()
	s.rows[v.Code] = v
	s.mu.Unlock()
}

// FindByCode implements voucher.Repository.
func (s *Vouchers) FindByCode(_ context.Context, code string) (*voucher.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.rows[voucher.NormalizeCode(code)]
	if !ok {
		return nil, voucher.ErrNotFound
	}
	return &v, nil
}

// ListCodes implements voucher.Repository.
func (s *Vouchers) ListCodes(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make([]string, 0, len(s.rows))
	for code := range s.rows {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// redeem increments the usage counter unless the limit is reached.
func (s *Vouchers) redeem(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code = voucher.NormalizeCode(code)
	v, ok := s.rows[code]
	if !ok || !v.IsActive {
		return &voucher.InvalidError{Code: code, Reason: voucher.ReasonNotFound}
	}
	if v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit {
		return &voucher.InvalidError{Code: code, Reason: voucher.ReasonLimitReached}
	}
	v.UsedCount++
	s.rows[code] = v
	return nil
}

// PaymentMethods is an in-memory payment method table.
type PaymentMethods struct {
	mu   sync.RWMutex
	rows map[int64]paymentmethod.Method
}

var _ paymentmethod.Repository = (*PaymentMethods)(nil)

// NewPaymentMethods returns an empty payment method table.
func NewPaymentMethods() *PaymentMethods {
	return &PaymentMethods{rows: make(map[int64]paymentmethod.Method)}
}

// Put inserts or replaces m.
func (s *PaymentMethods) Put(m paymentmethod.Method) {
	s.mu.Lock()
	s.rows[m.ID] = m
	s.mu.Unlock()
}

// GetByID implements paymentmethod.Repository.
func (s *PaymentMethods) GetByID(_ context.Context, id int64) (*paymentmethod.Method, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.rows[id]
	if !ok {
		return nil, paymentmethod.ErrNotFound
	}
	return &m, nil
}

// Products is an in-memory product catalog.
type Products struct {
	mu   sync.RWMutex
	rows map[int64]product.Product
}

var _ product.Repository = (*Products)(nil)

// NewProducts returns an empty catalog.
func NewProducts() *Products {
	return &Products{rows: make(map[int64]product.Product)}
}

// Put inserts or replaces p.
func (s *Products) Put(p product.Product) {
	s.mu.Lock()
	s.rows[p.ID] = p
	s.mu.Unlock()
}

// GetByID implements product.Repository.
func (s *Products) GetByID(_ context.Context, id int64) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.rows[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// APIKeys is an in-memory API key table indexed by hash.
type APIKeys struct {
	mu   sync.RWMutex
	rows map[string]auth.APIKeyInfo
}

var _ auth.Repository = (*APIKeys)(nil)

// NewAPIKeys returns an empty API key table.
func NewAPIKeys() *APIKeys {
	return &APIKeys{rows: make(map[string]auth.APIKeyInfo)}
}

// Put inserts or replaces info.
func (s *APIKeys) Put(info auth.APIKeyInfo) {
	s.mu.Lock()
	s.rows[info.KeyHash] = info
	s.mu.Unlock()
}

// FindByHash implements auth.Repository.
func (s *APIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.rows[hash]
	if !ok {
		return nil, errAPIKeyNotFound
	}
	return &info, nil
}
