package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// ExpireOverdue fails every pending order whose payment deadline has passed,
// in batches, and returns how many it failed. Orders already moved by a
// concurrent proof upload or lazy check are skipped by the store's guard.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		ids, err := s.orders.ExpireOverdue(ctx, s.now(), expiredNote, s.sweepBatch)
		if err != nil {
			return total, errors.Wrap(err, "expire overdue orders")
		}
		total += len(ids)

		if len(ids) > 0 {
			s.metrics.transition(ctx, StatusPending, StatusFailed, int64(len(ids)))
			zctx.From(ctx).Info("Expired overdue orders",
				zap.Int("count", len(ids)),
				zap.Strings("order_ids", ids),
			)
		}
		if len(ids) < s.sweepBatch {
			return total, nil
		}
	}
}
