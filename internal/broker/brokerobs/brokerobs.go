package brokerobs

import (
	"context"

	"b5-trader/internal/interfaces"
	"b5-trader/internal/logger"
	"b5-trader/internal/trace"
	"b5-trader/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

// PlaceOrder places an order with observability
func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol, "side", req.Side, "qty", req.Qty, "tag", req.Tag)

	resp, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Order placement failed", err,
			"symbol", req.Symbol, "side", req.Side, "qty", req.Qty)
		return types.OrderResp{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed",
		"symbol", req.Symbol, "side", req.Side, "qty", req.Qty,
		"order_id", resp.OrderID, "status", resp.Status)
	return resp, nil
}
