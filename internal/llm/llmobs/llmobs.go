package llmobs

import (
	"context"

	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/types"
)

// observableDecider wraps a Decider with observability (logging & tracing)
type observableDecider struct {
	decider interfaces.Decider
}

var _ interfaces.Decider = (*observableDecider)(nil)

func Wrap(decider interfaces.Decider) interfaces.Decider {
	return &observableDecider{decider: decider}
}

func (od *observableDecider) Decide(ctx context.Context, req types.DecisionRequest) (types.Decision, error) {
	op := logger.StartOperation(ctx, "llm.Decide",
		"symbol", req.Symbol,
		"open", req.Open,
		"volume", req.Volume,
		"trend", req.Indicators.Trend,
	)
	ctx = op.Context()

	decision, err := od.decider.Decide(ctx, req)
	if err != nil {
		op.EndWithError(err)
		return types.Decision{}, err
	}

	// Skip(1) so the reported source is the caller, not this wrapper
	logger.InfoSkip(ctx, 1, "Trading decision received",
		"symbol", req.Symbol,
		"action", decision.Action,
		"qty", decision.Qty,
		"reason", decision.Reason,
		"confidence", decision.Confidence,
		"duration_ms", op.Elapsed().Milliseconds(),
	)
	op.End("action", decision.Action, "qty", decision.Qty)
	return decision, nil
}
