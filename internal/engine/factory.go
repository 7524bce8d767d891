package engine

import (
	"context"
	"time"

	"llm-paper-trader/internal/chart"
	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/store"
	"llm-paper-trader/internal/types"
)

type Option func(*Engine)

// WithDecider sets the primary decider. Without one the engine runs on the
// rule-based policy alone.
func WithDecider(d interfaces.Decider) Option {
	return func(e *Engine) { e.primary = d }
}

// WithDecisionTimeout overrides the configured decision timeout.
func WithDecisionTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithTradeLog enables the JSONL audit log of decisions and fills.
func WithTradeLog() Option {
	return func(e *Engine) { e.audit = true }
}

// WithEOD writes an end-of-session summary once the stream is exhausted.
func WithEOD(s interfaces.EodSummarizer) Option {
	return func(e *Engine) { e.eod = s }
}

// New builds a session for cfg.Ticker over bars and the engine driving it.
// rec may be nil.
func New(ctx context.Context, cfg *store.Config, bars []types.Bar, rec *chart.Recorder, opts ...Option) (*Engine, error) {
	s, err := NewSession(ctx, cfg.Ticker, bars, cfg.StartingCash, rec)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, s, opts...), nil
}
