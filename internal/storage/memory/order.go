package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/topup-engine/internal/domain/order"
)

var errAPIKeyNotFound = errors.New("api key not found")

type idemKey struct {
	userID int64
	key    string
}

// Orders is an in-memory order store.
type Orders struct {
	vouchers *Vouchers

	mu     sync.Mutex
	nextID int64
	rows   map[string]*order.Order
	byID   map[int64]string
	idem   map[idemKey]string
}

var _ order.Repository = (*Orders)(nil)

// NewOrders returns an empty order store that redeems vouchers from vouchers.
func NewOrders(vouchers *Vouchers) *Orders {
	return &Orders{
		vouchers: vouchers,
		rows:     make(map[string]*order.Order),
		byID:     make(map[int64]string),
		idem:     make(map[idemKey]string),
	}
}

// Create implements order.Repository.
func (s *Orders) Create(_ context.Context, o *order.Order) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.IdempotencyKey != "" {
		if existing, ok := s.idem[idemKey{o.UserID, o.IdempotencyKey}]; ok {
			return clone(s.rows[existing]), nil
		}
	}
	if _, ok := s.rows[o.OrderID]; ok {
		return nil, errors.Errorf("order %q already exists", o.OrderID)
	}

	if o.VoucherCode != "" {
		if err := s.vouchers.redeem(o.VoucherCode); err != nil {
			return nil, err
		}
	}

	s.nextID++
	row := clone(o)
	row.ID = s.nextID
	s.rows[row.OrderID] = row
	s.byID[row.ID] = row.OrderID
	if row.IdempotencyKey != "" {
		s.idem[idemKey{row.UserID, row.IdempotencyKey}] = row.OrderID
	}
	return clone(row), nil
}

// FindByIdempotencyKey implements order.Repository.
func (s *Orders) FindByIdempotencyKey(_ context.Context, userID int64, key string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID, ok := s.idem[idemKey{userID, key}]
	if !ok {
		return nil, order.ErrNotFound
	}
	return clone(s.rows[orderID]), nil
}

// Get implements order.Repository.
func (s *Orders) Get(_ context.Context, ref order.Ref) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID := ref.OrderID
	if orderID == "" {
		orderID = s.byID[ref.ID]
	}
	row, ok := s.rows[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	return clone(row), nil
}

// List implements order.Repository. Results are newest first.
func (s *Orders) List(_ context.Context, f order.Filter) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Order, 0)
	for _, row := range s.rows {
		if f.UserID != 0 && row.UserID != f.UserID {
			continue
		}
		status := row.Status
		if !f.At.IsZero() {
			status = row.EffectiveStatus(f.At)
		}
		if f.Status != "" && status != f.Status {
			continue
		}
		out = append(out, *clone(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Transition implements order.Repository.
func (s *Orders) Transition(_ context.Context, orderID string, t order.Transition) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if !guard(row, t) {
		return nil, order.ErrStaleState
	}
	apply(row, t)
	return clone(row), nil
}

// ExpireOverdue implements order.Repository.
func (s *Orders) ExpireOverdue(_ context.Context, now time.Time, notes string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var overdue []*order.Order
	for _, row := range s.rows {
		if row.Status == order.StatusPending && !row.PaymentExpiresAt.After(now) {
			overdue = append(overdue, row)
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].PaymentExpiresAt.Before(overdue[j].PaymentExpiresAt)
	})
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}

	ids := make([]string, 0, len(overdue))
	for _, row := range overdue {
		apply(row, order.Transition{From: order.StatusPending, To: order.StatusFailed, At: now, Notes: &notes})
		ids = append(ids, row.OrderID)
	}
	return ids, nil
}

func guard(row *order.Order, t order.Transition) bool {
	if row.Status != t.From {
		return false
	}
	if !t.OpenAt.IsZero() && !row.PaymentExpiresAt.After(t.OpenAt) {
		return false
	}
	if !t.ClosedAt.IsZero() && row.PaymentExpiresAt.After(t.ClosedAt) {
		return false
	}
	return true
}

func apply(row *order.Order, t order.Transition) {
	row.Status = t.To
	row.UpdatedAt = t.At
	if t.Proof != nil {
		row.PaymentProof = append([]byte(nil), t.Proof.Data...)
		row.ProofContentType = t.Proof.ContentType
	}
	if t.VerifiedBy != nil {
		v := *t.VerifiedBy
		row.VerifiedBy = &v
	}
	if t.VerifiedAt != nil {
		v := *t.VerifiedAt
		row.VerifiedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		row.CompletedAt = &v
	}
	if t.Notes != nil {
		row.Notes = *t.Notes
	}
}

func clone(o *order.Order) *order.Order {
	c := *o
	if o.ProductID != nil {
		v := *o.ProductID
		c.ProductID = &v
	}
	if o.PaymentProof != nil {
		c.PaymentProof = append([]byte(nil), o.PaymentProof...)
	}
	return &c
}
