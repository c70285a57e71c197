package paperobs

import (
	"context"
	"time"

	"b5-trader/internal/interfaces"
	"b5-trader/internal/logger"
	"b5-trader/internal/trace"
	"b5-trader/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Cycle(ctx context.Context) (*types.CycleResult, error) {
	ctx, span := trace.StartSpan(ctx, "paper.Cycle")
	defer span.End()

	start := time.Now()

	result, err := oe.engine.Cycle(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Paper cycle failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	if result.Skipped {
		logger.DebugSkip(ctx, 1, "Paper cycle skipped, snapshot unchanged",
			"version", result.Version,
		)
		return result, nil
	}

	logger.InfoSkip(ctx, 1, "Paper cycle completed",
		"version", result.Version,
		"managed", result.Managed,
		"closed", result.Closed,
		"entered", result.Entered,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
