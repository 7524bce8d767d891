package interfaces

import (
	"context"

	"llm-paper-trader/internal/types"
)

type Decider interface {
	Decide(ctx context.Context, req types.DecisionRequest) (types.Decision, error)
}
