package fidelity

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts ledger postings. A nil *Metrics records nothing.
type Metrics struct {
	awarded  metric.Int64Counter
	refunded metric.Int64Counter
	skipped  metric.Int64Counter
	adjusted metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter("parashop/fidelity")
	}

	awarded, err := meter.Int64Counter("fidelity.points.awarded",
		metric.WithDescription("Points credited on delivered orders"),
		metric.WithUnit("{point}"))
	if err != nil {
		return nil, err
	}

	refunded, err := meter.Int64Counter("fidelity.points.refunded",
		metric.WithDescription("Points debited on cancelled or refunded orders"),
		metric.WithUnit("{point}"))
	if err != nil {
		return nil, err
	}

	skipped, err := meter.Int64Counter("fidelity.postings.skipped",
		metric.WithDescription("Award or refund postings that were due but not written"))
	if err != nil {
		return nil, err
	}

	adjusted, err := meter.Int64Counter("fidelity.adjustments",
		metric.WithDescription("Manual balance adjustments"))
	if err != nil {
		return nil, err
	}

	return &Metrics{awarded: awarded, refunded: refunded, skipped: skipped, adjusted: adjusted}, nil
}

func (m *Metrics) RecordPosting(ctx context.Context, p Posting) {
	if m == nil || p.Effect == EffectNone {
		return
	}
	if p.Skipped {
		m.skipped.Add(ctx, 1, metric.WithAttributes(
			attribute.String("effect", p.Effect.String()),
			attribute.String("reason", p.Reason),
		))
		return
	}
	switch p.Effect {
	case EffectAward:
		m.awarded.Add(ctx, p.Points)
	case EffectRefund:
		m.refunded.Add(ctx, p.Points)
	}
}

func (m *Metrics) RecordAdjustment(ctx context.Context, points int64) {
	if m == nil {
		return
	}
	direction := "add"
	if points < 0 {
		direction = "deduct"
	}
	m.adjusted.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
}
