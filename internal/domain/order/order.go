package order

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusCancelled is reserved for manual cancellation; no flow reaches it.
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(s)); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// transitions is the complete state graph.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  nil,
	StatusFailed:     nil,
	StatusCancelled:  nil,
}

// CanTransition reports whether the graph has an edge from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Order is one top-up request.
type Order struct {
	ID      int64
	OrderID string

	UserID          int64
	GameID          int64
	ProductID       *int64
	PaymentMethodID int64

	PlayerID string
	ServerID string

	// Amount is the fee-inclusive payable total.
	Amount         decimal.Decimal
	BaseAmount     decimal.Decimal
	DiscountAmount decimal.Decimal
	FeeAmount      decimal.Decimal
	VoucherCode    string

	Status           Status
	PaymentProof     []byte
	ProofContentType string
	// PaymentExpiresAt is written once at creation.
	PaymentExpiresAt time.Time

	VerifiedBy  *int64
	VerifiedAt  *time.Time
	CompletedAt *time.Time
	Notes       string

	IdempotencyKey string
	// RequestHash fingerprints the create request that carried
	// IdempotencyKey. See CreateRequest.Fingerprint.
	RequestHash string
	CreatedAt   time.Time
	UpdatedAt      time.Time
}

// HasProof reports whether a payment proof has been stored.
func (o *Order) HasProof() bool {
	return len(o.PaymentProof) > 0
}

// Overdue reports whether o is pending and its payment window has closed.
func (o *Order) Overdue(now time.Time) bool {
	return o.Status == StatusPending && !now.Before(o.PaymentExpiresAt)
}

// EffectiveStatus is the status o has at now once lazy expiration applies.
func (o *Order) EffectiveStatus(now time.Time) Status {
	if o.Overdue(now) {
		return StatusFailed
	}
	return o.Status
}

// Ref addresses an order either by internal numeric id or by external order id.
type Ref struct {
	ID      int64
	OrderID string
}

// ParseRef interprets s as a numeric id when it is all digits and as an
// external order id otherwise.
func ParseRef(s string) Ref {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil && id > 0 {
		return Ref{ID: id}
	}
	return Ref{OrderID: s}
}

func (r Ref) String() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return strconv.FormatInt(r.ID, 10)
}

// Transition is a conditional status change. It applies only while the
// stored status equals From.
type Transition struct {
	From Status
	To   Status
	At   time.Time

	// OpenAt, when set, additionally requires PaymentExpiresAt > OpenAt.
	OpenAt time.Time
	// ClosedAt, when set, additionally requires PaymentExpiresAt <= ClosedAt.
	ClosedAt time.Time

	Proof       *Proof
	VerifiedBy  *int64
	VerifiedAt  *time.Time
	CompletedAt *time.Time
	Notes       *string
}

// Filter narrows List results.
type Filter struct {
	// UserID of zero lists every user's orders.
	UserID int64
	Status Status
	// At, when set, matches Status against the effective status at that
	// instant, so pending orders past their deadline count as failed.
	At    time.Time
	Limit int
}

// Repository is the order store. Every status change goes through
// Transition or ExpireOverdue, both conditional on the current status.
type Repository interface {
	// Create persists o and, when o.VoucherCode is set, redeems one use of
	// the voucher in the same transaction, failing with a voucher
	// InvalidError when the usage limit is reached. When o.IdempotencyKey
	// matches an existing order of the same user, that order is returned and
	// nothing is written.
	Create(ctx context.Context, o *Order) (*Order, error)
	Get(ctx context.Context, ref Ref) (*Order, error)
	// FindByIdempotencyKey returns the order userID created with key, or
	// ErrNotFound.
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	// Transition applies t to the order and returns the updated row, or
	// ErrStaleState when the guard did not match.
	Transition(ctx context.Context, orderID string, t Transition) (*Order, error)
	// ExpireOverdue fails up to limit pending orders whose deadline is at or
	// before now and returns their order ids.
	ExpireOverdue(ctx context.Context, now time.Time, notes string, limit int) ([]string, error)
}
