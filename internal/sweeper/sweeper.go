// Package sweeper periodically fails pending orders whose payment window
// has closed.
package sweeper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const defaultInterval = 20 * time.Second

// Expirer fails overdue orders and reports how many it failed.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Config configures a Sweeper.
type Config struct {
	Interval       time.Duration
	TracerProvider trace.TracerProvider
}

// Sweeper runs Expirer on a fixed interval.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	tracer   trace.Tracer

	lastSuccess atomic.Int64 // unix nanos
	now         func() time.Time
}

// New creates a Sweeper.
func New(expirer Expirer, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sweeper{
		expirer:  expirer,
		interval: cfg.Interval,
		tracer:   tp.Tracer("github.com/xenking/topup-engine/internal/sweeper"),
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Sweep failures are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	lg := zctx.From(ctx).Named("sweeper")
	lg.Info("Starting", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			lg.Error("Sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			lg.Info("Stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep runs a single expiration pass.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "sweeper.Sweep")
	defer span.End()

	n, err := s.expirer.ExpireOverdue(ctx)
	span.SetAttributes(attribute.Int("topup.orders.expired", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return n, err
	}

	s.lastSuccess.Store(s.now().UnixNano())
	return n, nil
}

// LastSuccess returns the completion time of the latest successful sweep,
// or the zero time when none has succeeded yet.
func (s *Sweeper) LastSuccess() time.Time {
	ns := s.lastSuccess.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Interval returns the configured sweep interval.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}
