package engine

import (
	"context"
	"fmt"

	"llm-paper-trader/internal/chart"
	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/market"
	"llm-paper-trader/internal/memory"
	"llm-paper-trader/internal/portfolio"
	"llm-paper-trader/internal/types"

	"github.com/google/uuid"
)

// Session is the mutable state of one simulated trading day. Only the
// engine's step path touches it.
type Session struct {
	ID     string
	Ticker string

	stream  *market.Stream
	ledger  *portfolio.Ledger
	memory  *memory.Memory
	chart   *chart.Recorder
	records []types.BarRecord
	logs    []string

	finished bool
}

// NewSession builds the session for ticker over bars and publishes the
// context day to the chart.
func NewSession(ctx context.Context, ticker string, bars []types.Bar, startingCash float64, rec *chart.Recorder) (*Session, error) {
	stream, err := market.NewStream(bars)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", ticker, err)
	}
	if rec == nil {
		rec = chart.NewRecorder()
	}
	s := &Session{
		ID:     uuid.NewString(),
		Ticker: ticker,
		stream: stream,
		ledger: portfolio.NewLedger(startingCash),
		memory: memory.New(),
		chart:  rec,
	}
	ctxBars := stream.ContextBars()
	if len(ctxBars) > 0 {
		s.ledger.Mark(ctxBars[len(ctxBars)-1].Close)
	}
	rec.InitContext(ctxBars)

	s.log(ctx, fmt.Sprintf("🚀 INTELLIGENT TRADER READY - %s | context bars: %d | trade bars: %d | cash: ₹%.2f",
		ticker, len(ctxBars), stream.Len(), startingCash))
	return s, nil
}

// log appends a line to the session log and mirrors it to the process log.
func (s *Session) log(ctx context.Context, line string) {
	s.logs = append(s.logs, line)
	logger.Info(ctx, line, "session_id", s.ID, "symbol", s.Ticker)
}

func (s *Session) Records() []types.BarRecord {
	out := make([]types.BarRecord, len(s.records))
	copy(out, s.records)
	return out
}

func tail[T any](xs []T, n int) []T {
	if n <= 0 || n >= len(xs) {
		n = len(xs)
	}
	out := make([]T, n)
	copy(out, xs[len(xs)-n:])
	return out
}
