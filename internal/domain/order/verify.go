package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/topup-engine/internal/domain/auth"
)

// VerifyRequest holds a verifier's decision on a processing order.
type VerifyRequest struct {
	Target Status
	Notes  string
}

// Verify settles a processing order as completed or failed. Both outcomes
// record the verifier; completion also stamps CompletedAt.
func (s *Service) Verify(ctx context.Context, p auth.Principal, ref Ref, req VerifyRequest) (*Order, error) {
	if !p.Can(auth.CapVerifyOrders) {
		return nil, ErrNotAuthorized
	}
	if req.Target != StatusCompleted && req.Target != StatusFailed {
		return nil, ErrInvalidTarget
	}

	o, err := s.orders.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	o, err = s.expireIfOverdue(ctx, o)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusProcessing {
		s.metrics.conflict(ctx, StatusProcessing)
		return nil, &StateConflictError{OrderID: o.OrderID, Expected: StatusProcessing, Actual: o.Status}
	}

	now := s.now()
	verifier := p.UserID
	t := Transition{
		From:       StatusProcessing,
		To:         req.Target,
		At:         now,
		VerifiedBy: &verifier,
		VerifiedAt: &now,
	}
	if req.Target == StatusCompleted {
		t.CompletedAt = &now
	}
	if req.Notes != "" {
		notes := req.Notes
		t.Notes = &notes
	}

	updated, err := s.orders.Transition(ctx, o.OrderID, t)
	if err != nil {
		if errors.Is(err, ErrStaleState) {
			return nil, s.conflict(ctx, o.OrderID, StatusProcessing)
		}
		return nil, errors.Wrap(err, "verify order")
	}

	s.metrics.transition(ctx, StatusProcessing, req.Target, 1)
	zctx.From(ctx).Info("Order verified",
		zap.String("order_id", updated.OrderID),
		zap.String("status", string(updated.Status)),
		zap.Int64("verified_by", verifier),
	)
	return updated, nil
}
