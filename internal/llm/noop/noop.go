package noop

import (
	"context"

	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/types"
)

const Source = "noop"

// NoopDecider always decides HOLD. It is used when trading is switched off
// on purpose, as opposed to the rule fallback.
type NoopDecider struct{}

var _ interfaces.Decider = (*NoopDecider)(nil)

func NewNoopDecider() *NoopDecider {
	return &NoopDecider{}
}

func (d *NoopDecider) Decide(ctx context.Context, req types.DecisionRequest) (types.Decision, error) {
	logger.Debug(ctx, "Noop decider called - always returns HOLD", "symbol", req.Symbol)
	return types.Decision{
		Action: types.ActionHold,
		Reason: "noop_decider",
		Source: Source,
	}, nil
}
