package voucher

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const indexFPR = 0.001

// IndexedRepository fronts a Repository with a bloom filter of known codes.
// Vouchers are created outside the engine, so a filter miss is never taken as
// proof of absence: the code is looked up and, when found, added to the
// filter. Misses confirmed by the repository are remembered until the next
// Refresh, so repeated guesses of the same unknown code skip the database
// while any code created meanwhile still resolves on its first lookup.
type IndexedRepository struct {
	repo Repository

	mu      sync.RWMutex
	filter  *bloom.BloomFilter
	missing map[string]struct{}
}

// maxMissing bounds the set of confirmed misses kept between refreshes.
const maxMissing = 4096

var _ Repository = (*IndexedRepository)(nil)

// NewIndexedRepository wraps repo. Until the first Refresh every lookup goes
// to repo.
func NewIndexedRepository(repo Repository) *IndexedRepository {
	return &IndexedRepository{repo: repo}
}

// Refresh rebuilds the filter from the full code list.
func (r *IndexedRepository) Refresh(ctx context.Context) error {
	codes, err := r.repo.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list voucher codes")
	}

	n := uint(len(codes))
	if n < 1024 {
		n = 1024
	}
	filter := bloom.NewWithEstimates(n, indexFPR)
	for _, code := range codes {
		filter.AddString(NormalizeCode(code))
	}

	r.mu.Lock()
	r.filter = filter
	r.missing = make(map[string]struct{})
	r.mu.Unlock()

	zctx.From(ctx).Debug("Voucher index refreshed", zap.Int("codes", len(codes)))
	return nil
}

// Run refreshes the filter every interval until ctx is cancelled. Refresh
// failures keep the previous filter.
func (r *IndexedRepository) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				zctx.From(ctx).Warn("Voucher index refresh failed", zap.Error(err))
			}
		}
	}
}

// FindByCode implements Repository.
func (r *IndexedRepository) FindByCode(ctx context.Context, code string) (*Voucher, error) {
	norm := NormalizeCode(code)

	r.mu.RLock()
	filter := r.filter
	known := filter == nil || filter.TestString(norm)
	_, missing := r.missing[norm]
	r.mu.RUnlock()

	if known {
		return r.repo.FindByCode(ctx, code)
	}
	if missing {
		return nil, ErrNotFound
	}

	v, err := r.repo.FindByCode(ctx, code)
	switch {
	case err == nil:
		r.mu.Lock()
		if r.filter == filter {
			filter.AddString(norm)
		}
		r.mu.Unlock()
		zctx.From(ctx).Debug("Voucher index learned code", zap.String("code", norm))
		return v, nil
	case errors.Is(err, ErrNotFound):
		r.mu.Lock()
		if r.filter == filter && len(r.missing) < maxMissing {
			r.missing[norm] = struct{}{}
		}
		r.mu.Unlock()
		return nil, err
	default:
		return nil, err
	}
}

// ListCodes implements Repository.
func (r *IndexedRepository) ListCodes(ctx context.Context) ([]string, error) {
	return r.repo.ListCodes(ctx)
}
