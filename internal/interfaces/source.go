package interfaces

import (
	"context"

	"llm-paper-trader/internal/types"
)

// BarSource supplies the raw bar series for a ticker.
type BarSource interface {
	Load(ctx context.Context, ticker string) ([]types.Bar, error)
}

// ChartSink receives chart events as they are produced.
type ChartSink interface {
	Publish(ev types.ChartEvent)
}
