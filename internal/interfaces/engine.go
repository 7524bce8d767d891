package interfaces

import (
	"context"

	"llm-paper-trader/internal/types"
)

type Engine interface {
	Step(ctx context.Context) (*types.StepResult, error)
}
