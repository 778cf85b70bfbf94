// Package fidelity keeps the loyalty ledger: a per-user point balance and the
// append-only history that backs it.
package fidelity

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/parashop/internal/domain"
)

var (
	earnRate   = decimal.RequireFromString("0.02")
	pointScale = decimal.NewFromInt(1000)
)

// PointsFor returns floor(total * 0.02 * 1000). Refunds re-derive the amount
// from the stored total, so this must stay exact and truncating.
func PointsFor(total decimal.Decimal) int64 {
	if total.IsNegative() {
		return 0
	}
	return total.Mul(earnRate).Mul(pointScale).Floor().IntPart()
}

type Effect int

const (
	EffectNone Effect = iota
	EffectAward
	EffectRefund
)

func (e Effect) String() string {
	switch e {
	case EffectAward:
		return "award"
	case EffectRefund:
		return "refund"
	default:
		return "none"
	}
}

// Decide reports which ledger posting a status change calls for. Only the
// DELIVERED boundary moves points.
func Decide(previous, next domain.OrderStatus) Effect {
	if next == domain.OrderStatusDelivered && previous != domain.OrderStatusDelivered {
		return EffectAward
	}
	if (next == domain.OrderStatusCancelled || next == domain.OrderStatusRefunded) &&
		previous == domain.OrderStatusDelivered {
		return EffectRefund
	}
	return EffectNone
}
