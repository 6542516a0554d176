package order

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/xenking/topup-engine/internal/domain/order"

type metrics struct {
	created     metric.Int64Counter
	transitions metric.Int64Counter
	conflicts   metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) *metrics {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := &metrics{}
	var err error
	if m.created, err = meter.Int64Counter("topup.orders.created",
		metric.WithDescription("Orders created"),
	); err != nil {
		m.created = noop.Int64Counter{}
	}
	if m.transitions, err = meter.Int64Counter("topup.orders.transitions",
		metric.WithDescription("Applied order status transitions"),
	); err != nil {
		m.transitions = noop.Int64Counter{}
	}
	if m.conflicts, err = meter.Int64Counter("topup.orders.conflicts",
		metric.WithDescription("Transitions rejected because the order was in another state"),
	); err != nil {
		m.conflicts = noop.Int64Counter{}
	}
	return m
}

func (m *metrics) transition(ctx context.Context, from, to Status, n int64) {
	m.transitions.Add(ctx, n, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m *metrics) conflict(ctx context.Context, expected Status) {
	m.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("expected", string(expected))))
}
