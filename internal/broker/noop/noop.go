package noop

import (
	"context"
	"fmt"
	"time"

	"b5-trader/internal/interfaces"
	"b5-trader/internal/types"
)

// Noop is the paper-mode broker: it fabricates order IDs and never touches
// a real account.
type Noop struct{}

var _ interfaces.Broker = (*Noop)(nil)

func New() *Noop { return &Noop{} }

func (n *Noop) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	return types.OrderResp{
		OrderID: fmt.Sprintf("SIM-%d", time.Now().UnixNano()),
		Status:  "SIMULATED",
		Message: "paper",
	}, nil
}
