// Package order implements the top-up order lifecycle: pricing and creation,
// lazy and swept expiration, proof intake, and verification. Every status
// change is a conditional update against the Repository.
package order

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/topup-engine/internal/domain/auth"
	"github.com/xenking/topup-engine/internal/domain/paymentmethod"
	"github.com/xenking/topup-engine/internal/domain/pricing"
	"github.com/xenking/topup-engine/internal/domain/product"
	"github.com/xenking/topup-engine/internal/domain/voucher"
)

const (
	defaultPaymentWindow = 10 * time.Minute
	defaultSweepBatch    = 500
	defaultListLimit     = 50
	maxListLimit         = 200

	expiredNote = "payment window elapsed"
)

// Config holds the tunables of a Service.
type Config struct {
	// PaymentWindow is the time between creation and the payment deadline.
	PaymentWindow time.Duration
	ProofLimits   ProofLimits
	// SweepBatchSize bounds the rows failed by one ExpireOverdue statement.
	SweepBatchSize int
	MeterProvider  metric.MeterProvider
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	GameID    int64
	PlayerID  string
	ServerID  string
	ProductID *int64
	// BaseAmount is used when ProductID is nil.
	BaseAmount      decimal.Decimal
	PaymentMethodID int64
	VoucherCode     string
	// IdempotencyKey makes retries of the same request return the first order.
	IdempotencyKey string
}

// Fingerprint identifies the order a request asks for, independent of prices
// that may change between retries. Voucher codes are compared normalized.
func (r CreateRequest) Fingerprint() string {
	var product int64
	if r.ProductID != nil {
		product = *r.ProductID
	}
	base := ""
	if r.ProductID == nil {
		base = r.BaseAmount.String()
	}
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%d\x00%q\x00%q\x00%d\x00%s\x00%d\x00%q",
		r.GameID, r.PlayerID, r.ServerID, product, base, r.PaymentMethodID, voucher.NormalizeCode(r.VoucherCode))
	return hex.EncodeToString(h.Sum(nil))
}

// Service encapsulates the order lifecycle.
type Service struct {
	orders   Repository
	methods  paymentmethod.Repository
	products product.Repository
	vouchers voucher.Validator

	window      time.Duration
	proofLimits ProofLimits
	sweepBatch  int
	metrics     *metrics
	now         func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(
	orders Repository,
	methods paymentmethod.Repository,
	products product.Repository,
	vouchers voucher.Validator,
	cfg Config,
) *Service {
	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = defaultPaymentWindow
	}
	if cfg.ProofLimits == (ProofLimits{}) {
		cfg.ProofLimits = DefaultProofLimits
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = defaultSweepBatch
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		orders:      orders,
		methods:     methods,
		products:    products,
		vouchers:    vouchers,
		window:      cfg.PaymentWindow,
		proofLimits: cfg.ProofLimits,
		sweepBatch:  cfg.SweepBatchSize,
		metrics:     newMetrics(cfg.MeterProvider),
		now:         cfg.Now,
	}
}

// PaymentWindow returns the configured payment window.
func (s *Service) PaymentWindow() time.Duration {
	return s.window
}

// CreateOrder prices the request, validates it against the payment method and
// persists a pending order whose payment deadline is now plus the payment
// window. Nothing is written when any check fails. A request carrying an
// idempotency key already used by the caller returns that order, priced as it
// was, without re-running the checks.
func (s *Service) CreateOrder(ctx context.Context, p auth.Principal, req CreateRequest) (*Order, error) {
	if req.GameID <= 0 {
		return nil, ErrMissingGame
	}
	if req.PlayerID == "" {
		return nil, ErrMissingPlayer
	}

	var fingerprint string
	if req.IdempotencyKey != "" {
		fingerprint = req.Fingerprint()
		existing, err := s.orders.FindByIdempotencyKey(ctx, p.UserID, req.IdempotencyKey)
		switch {
		case err == nil:
			return s.replay(ctx, existing, fingerprint)
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "find order by idempotency key")
		}
	}

	base, err := s.resolveBase(ctx, req)
	if err != nil {
		return nil, err
	}

	method, err := s.methods.GetByID(ctx, req.PaymentMethodID)
	if err != nil {
		return nil, errors.Wrap(err, "get payment method")
	}
	if !method.IsActive {
		return nil, ErrPaymentMethodInactive
	}

	discount := decimal.Zero
	code := voucher.NormalizeCode(req.VoucherCode)
	if code != "" {
		res, err := s.vouchers.Validate(ctx, code, base)
		if err != nil {
			return nil, errors.Wrap(err, "validate voucher")
		}
		discount = res.Discount
	}

	quote, err := pricing.Calculate(base, discount, method.Fee())
	if err != nil {
		return nil, err
	}

	if !method.InRange(quote.Discounted) {
		return nil, &AmountOutOfRangeError{
			Amount: quote.Discounted,
			Min:    method.MinAmount,
			Max:    method.MaxAmount,
		}
	}

	now := s.now()
	o := &Order{
		OrderID:          newOrderID(),
		UserID:           p.UserID,
		GameID:           req.GameID,
		ProductID:        req.ProductID,
		PaymentMethodID:  method.ID,
		PlayerID:         req.PlayerID,
		ServerID:         req.ServerID,
		Amount:           quote.Total,
		BaseAmount:       quote.Base,
		DiscountAmount:   quote.Discount,
		FeeAmount:        quote.Fee,
		VoucherCode:      code,
		Status:           StatusPending,
		PaymentExpiresAt: now.Add(s.window),
		IdempotencyKey:   req.IdempotencyKey,
		RequestHash:      fingerprint,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := s.orders.Create(ctx, o)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if created.OrderID != o.OrderID {
		// A concurrent request with the same idempotency key won.
		return s.replay(ctx, created, fingerprint)
	}

	s.metrics.created.Add(ctx, 1)
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", created.OrderID),
		zap.Int64("user_id", created.UserID),
		zap.String("amount", created.Amount.String()),
		zap.Time("payment_expires_at", created.PaymentExpiresAt),
	)
	return created, nil
}

// replay answers a retried create with the order its idempotency key already
// produced. A retry that asks for a different order is rejected.
func (s *Service) replay(ctx context.Context, o *Order, fingerprint string) (*Order, error) {
	if o.RequestHash != "" && o.RequestHash != fingerprint {
		zctx.From(ctx).Info("Idempotency key reused with a different request",
			zap.String("order_id", o.OrderID),
			zap.Int64("user_id", o.UserID),
		)
		return nil, ErrIdempotencyMismatch
	}
	return s.expireIfOverdue(ctx, o)
}

func (s *Service) resolveBase(ctx context.Context, req CreateRequest) (decimal.Decimal, error) {
	if req.ProductID == nil {
		if !req.BaseAmount.IsPositive() {
			return decimal.Zero, pricing.ErrInvalidAmount
		}
		return req.BaseAmount, nil
	}

	prod, err := s.products.GetByID(ctx, *req.ProductID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "get product")
	}
	if prod.GameID != req.GameID {
		return decimal.Zero, ErrProductMismatch
	}
	if !prod.IsActive {
		return decimal.Zero, ErrProductInactive
	}
	if !prod.Price.IsPositive() {
		return decimal.Zero, pricing.ErrInvalidAmount
	}
	return prod.Price, nil
}

// GetOrder returns the order after applying the lazy expiration check. Only
// the owner or a principal allowed to view any order may read it.
func (s *Service) GetOrder(ctx context.Context, p auth.Principal, ref Ref) (*Order, error) {
	o, err := s.orders.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !p.Owns(o.UserID) && !p.Can(auth.CapViewAnyOrder) {
		return nil, ErrNotOwner
	}
	return s.expireIfOverdue(ctx, o)
}

// ListOrders returns the caller's orders, or every user's orders for a
// principal allowed to view any order. The status filter matches the
// effective status, so overdue pending orders are listed, and expired, as
// failed.
func (s *Service) ListOrders(ctx context.Context, p auth.Principal, f Filter) ([]Order, error) {
	if !p.Can(auth.CapViewAnyOrder) {
		f.UserID = p.UserID
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}

	f.At = s.now()
	list, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	out := list[:0]
	for i := range list {
		o, err := s.expireIfOverdueAt(ctx, &list[i], f.At)
		if err != nil {
			return nil, err
		}
		// Only a concurrent writer can move a row off the filtered status.
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

// expireIfOverdue fails o when it is pending past its deadline and returns
// the current row. Losing the race to another writer is not an error.
func (s *Service) expireIfOverdue(ctx context.Context, o *Order) (*Order, error) {
	return s.expireIfOverdueAt(ctx, o, s.now())
}

func (s *Service) expireIfOverdueAt(ctx context.Context, o *Order, now time.Time) (*Order, error) {
	if !o.Overdue(now) {
		return o, nil
	}

	note := expiredNote
	updated, err := s.orders.Transition(ctx, o.OrderID, Transition{
		From:     StatusPending,
		To:       StatusFailed,
		At:       now,
		ClosedAt: now,
		Notes:    &note,
	})
	switch {
	case err == nil:
		s.metrics.transition(ctx, StatusPending, StatusFailed, 1)
		zctx.From(ctx).Info("Order expired on read",
			zap.String("order_id", o.OrderID),
			zap.Time("payment_expires_at", o.PaymentExpiresAt),
		)
		return updated, nil
	case errors.Is(err, ErrStaleState):
		current, err := s.orders.Get(ctx, Ref{OrderID: o.OrderID})
		if err != nil {
			return nil, errors.Wrap(err, "reload order")
		}
		return current, nil
	default:
		return nil, errors.Wrap(err, "expire order")
	}
}

// conflict reloads the order after a lost conditional update and reports
// the state it was found in.
func (s *Service) conflict(ctx context.Context, orderID string, expected Status) error {
	s.metrics.conflict(ctx, expected)

	current, err := s.orders.Get(ctx, Ref{OrderID: orderID})
	if err != nil {
		return errors.Wrap(err, "reload order")
	}
	current, err = s.expireIfOverdue(ctx, current)
	if err != nil {
		return err
	}
	return &StateConflictError{OrderID: orderID, Expected: expected, Actual: current.Status}
}

func newOrderID() string {
	return uuid.New().String()
}
