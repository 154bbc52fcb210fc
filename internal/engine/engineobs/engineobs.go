package engineobs

import (
	"context"
	"time"

	"crypto-trading-agent/internal/interfaces"
	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/trace"
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

func (oe *observableEngine) RunCycle(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "engine.RunCycle")
	defer span.End()

	start := time.Now()

	err := oe.engine.RunCycle(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Decision cycle failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	logger.InfoSkip(ctx, 1, "Decision cycle completed",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
