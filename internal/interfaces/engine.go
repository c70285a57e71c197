package interfaces

import (
	"context"

	"b5-trader/internal/types"
)

type Engine interface {
	Cycle(ctx context.Context) (*types.CycleResult, error)
}
