package eod

import (
	"llm-paper-trader/internal/interfaces"
)

// NewSummarizer writes summaries under dir/eod. Empty dir uses the trade
// log directory.
func NewSummarizer(dir string) interfaces.EodSummarizer {
	return &eodSummarizer{dir: dir}
}
