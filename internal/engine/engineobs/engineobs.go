package engineobs

import (
	"context"

	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/types"
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

func (oe *observableEngine) Step(ctx context.Context) (*types.StepResult, error) {
	op := logger.StartOperation(ctx, "engine.Step")
	ctx = op.Context()

	result, err := oe.engine.Step(ctx)
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}

	if result.Done {
		logger.InfoSkip(ctx, 1, "Session complete",
			"index", result.Index,
			"total_pnl", result.Portfolio.TotalPnL,
		)
		op.End("done", true)
		return result, nil
	}

	fields := []any{
		"index", result.Index,
		"open", result.Open,
		"close", result.Close,
		"fills", len(result.Fills),
	}
	if result.Decision != nil {
		fields = append(fields, "action", result.Decision.Action, "reason", result.Decision.Reason)
	}
	if result.Override != nil {
		fields = append(fields, "override", result.Override.Command, "override_executed", result.Override.Executed)
	}
	logger.InfoSkip(ctx, 1, "Bar step completed", append(fields, "duration_ms", op.Elapsed().Milliseconds())...)
	op.End(fields...)

	return result, nil
}
