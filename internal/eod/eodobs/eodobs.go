package eodobs

import (
	"context"

	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/trace"
	"llm-paper-trader/internal/types"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{
		summarizer: summarizer,
	}
}

func (oes *observableEodSummarizer) Summarize(symbol string, fills []types.Fill, final types.Snapshot) (string, error) {
	ctx := context.Background()
	ctx, span := trace.StartSpan(ctx, "eod.Summarize")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting EOD summary generation",
		"symbol", symbol,
		"fills", len(fills),
	)

	csvPath, err := oes.summarizer.Summarize(symbol, fills, final)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "EOD summary generation failed", err,
			"symbol", symbol,
		)
		return "", err
	}

	if csvPath == "" {
		logger.InfoSkip(ctx, 1, "No trades found for EOD summary",
			"symbol", symbol,
		)
		return "", nil
	}

	logger.InfoSkip(ctx, 1, "EOD summary generated successfully",
		"symbol", symbol,
		"csv_path", csvPath,
		"total_pnl", final.TotalPnL,
	)
	return csvPath, nil
}
