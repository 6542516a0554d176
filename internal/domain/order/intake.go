package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/topup-engine/internal/domain/apperr"
	"github.com/xenking/topup-engine/internal/domain/auth"
)

// ErrProofNotFound is returned when an order has no stored proof.
var ErrProofNotFound = apperr.New(apperr.KindNotFound, "order has no payment proof")

// SubmitProof stores the payment proof of a pending order and moves it to
// processing. The owner must submit it before the payment deadline; a proof
// arriving after the deadline finds the order already failed.
func (s *Service) SubmitProof(ctx context.Context, p auth.Principal, ref Ref, proof Proof) (*Order, error) {
	o, err := s.orders.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !p.Owns(o.UserID) {
		return nil, ErrNotOwner
	}

	o, err = s.expireIfOverdue(ctx, o)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		s.metrics.conflict(ctx, StatusPending)
		return nil, &StateConflictError{OrderID: o.OrderID, Expected: StatusPending, Actual: o.Status}
	}

	proof = proof.Normalize()
	if err := CheckProof(proof, s.proofLimits); err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.orders.Transition(ctx, o.OrderID, Transition{
		From:   StatusPending,
		To:     StatusProcessing,
		At:     now,
		OpenAt: now,
		Proof:  &proof,
	})
	if err != nil {
		if errors.Is(err, ErrStaleState) {
			return nil, s.conflict(ctx, o.OrderID, StatusPending)
		}
		return nil, errors.Wrap(err, "store payment proof")
	}

	s.metrics.transition(ctx, StatusPending, StatusProcessing, 1)
	zctx.From(ctx).Info("Payment proof accepted",
		zap.String("order_id", updated.OrderID),
		zap.String("content_type", proof.ContentType),
		zap.Int("bytes", len(proof.Data)),
	)
	return updated, nil
}

// GetProof returns the stored proof to the owner or to a principal allowed to
// view any order.
func (s *Service) GetProof(ctx context.Context, p auth.Principal, ref Ref) (*Proof, error) {
	o, err := s.orders.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !p.Owns(o.UserID) && !p.Can(auth.CapViewAnyOrder) {
		return nil, ErrNotOwner
	}
	if !o.HasProof() {
		return nil, ErrProofNotFound
	}
	return &Proof{ContentType: o.ProofContentType, Data: o.PaymentProof}, nil
}
