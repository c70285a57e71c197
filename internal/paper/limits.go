package paper

import (
	"context"

	"b5-trader/internal/logger"
	"b5-trader/internal/types"
)

// Governor tracks the day's order and position budgets and renders the
// color-coded safety verdict that gates new entries.
type Governor struct {
	store *Store

	maxOrdersPerDay  int
	maxOpenPositions int
	maxMarginUsedPct float64 // advisory only; tracked, never blocks
}

func NewGovernor(store *Store, maxOrders, maxPositions int, maxMarginPct float64) *Governor {
	return &Governor{
		store:            store,
		maxOrdersPerDay:  maxOrders,
		maxOpenPositions: maxPositions,
		maxMarginUsedPct: maxMarginPct,
	}
}

// Status computes the verdict for a day. Red when either remaining budget
// drops under 20% of its limit, yellow under 50%, green otherwise.
func (g *Governor) Status(ctx context.Context, day string) types.LimitsStatus {
	st := types.LimitsStatus{
		Day:              day,
		MaxOrdersPerDay:  g.maxOrdersPerDay,
		MaxOpenPositions: g.maxOpenPositions,
		MaxMarginUsedPct: g.maxMarginUsedPct,
	}

	orders, err := g.store.OrdersPlaced(ctx, day)
	if err != nil {
		logger.Debug(ctx, "broker-limits orders unavailable", "error", err)
	}
	open, margin, err := g.store.OpenExposure(ctx, day)
	if err != nil {
		logger.Debug(ctx, "broker-limits exposure unavailable", "error", err)
	}

	st.OrdersPlaced = orders
	st.OpenPositions = open
	st.MarginUsed = margin
	st.OrdersRemaining = max(0, g.maxOrdersPerDay-orders)
	st.PositionsRemaining = max(0, g.maxOpenPositions-open)

	ordersPct := pct(st.OrdersRemaining, g.maxOrdersPerDay)
	positionsPct := pct(st.PositionsRemaining, g.maxOpenPositions)

	switch {
	case ordersPct < 20 || positionsPct < 20:
		st.Status = types.LimitRed
	case ordersPct < 50 || positionsPct < 50:
		st.Status = types.LimitYellow
	default:
		st.Status = types.LimitGreen
	}
	st.Safe = st.Status != types.LimitRed
	return st
}

// RecordOrder bumps the day's counter after an accepted entry.
func (g *Governor) RecordOrder(ctx context.Context, day, nowISO string) {
	if err := g.store.RecordOrder(ctx, day, nowISO); err != nil {
		logger.Warn(ctx, "broker-limits counter update failed", "day", day, "error", err)
	}
}

func pct(remaining, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(remaining) * 100 / float64(limit)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
