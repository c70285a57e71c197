package interfaces

import (
	"context"

	"b5-trader/internal/types"
)

type Broker interface {
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
}
