package interfaces

import "llm-paper-trader/internal/types"

type EodSummarizer interface {
	Summarize(symbol string, fills []types.Fill, final types.Snapshot) (csvPath string, err error)
}
