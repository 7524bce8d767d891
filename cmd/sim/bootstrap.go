package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"llm-paper-trader/internal/chart"
	"llm-paper-trader/internal/engine"
	"llm-paper-trader/internal/engine/engineobs"
	"llm-paper-trader/internal/eod"
	"llm-paper-trader/internal/eod/eodobs"
	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/llm/claude"
	"llm-paper-trader/internal/llm/llmobs"
	"llm-paper-trader/internal/llm/noop"
	"llm-paper-trader/internal/llm/openai"
	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/market"
	"llm-paper-trader/internal/store"
	"llm-paper-trader/internal/trace"
	"llm-paper-trader/internal/tradelog"
	"llm-paper-trader/internal/types"

	"github.com/joho/godotenv"
)

// initializeSystem loads .env and sets up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// setupTradeLog points the audit log at the configured directory and
// compresses old files.
func setupTradeLog(ctx context.Context, cfg *store.Config) {
	tradelog.SetDir(cfg.Logs.Dir)
	if cfg.Logs.RetentionDays > 0 {
		if err := tradelog.CompressOlder(cfg.Logs.RetentionDays); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

func buildSource(cfg *store.Config) interfaces.BarSource {
	if cfg.DataSource == "KITE" {
		return market.NewKiteSource(market.KiteParams{
			APIKey:       os.Getenv("KITE_API_KEY"),
			AccessToken:  os.Getenv("KITE_ACCESS_TOKEN"),
			Exchange:     cfg.Exchange,
			Interval:     cfg.Interval,
			LookbackDays: cfg.LookbackDays,
			Location:     cfg.Location(),
		})
	}
	return market.NewCSVSource(cfg.CSVPath, cfg.Location())
}

// prepareBars loads and filters the series, and writes the debug artifact.
func prepareBars(ctx context.Context, cfg *store.Config) ([]types.Bar, error) {
	start, _ := store.ParseClock(cfg.Session.Start)
	end, _ := store.ParseClock(cfg.Session.End)
	loc := cfg.Location()

	bars, err := market.Prepare(ctx, buildSource(cfg), cfg.Ticker, loc, start, end)
	if err != nil {
		return nil, err
	}
	if cfg.DataSource == "KITE" {
		from, to := market.LookbackWindow(time.Now().In(loc), cfg.LookbackDays)
		bars = market.SliceRecentDays(bars, from, to)
		if len(bars) == 0 {
			return nil, fmt.Errorf("%w: nothing left in the lookback window", market.ErrDataUnavailable)
		}
	}

	name := market.DebugFileName(cfg.Ticker, cfg.Interval, bars[0].Time, bars[len(bars)-1].Time)
	path := filepath.Join(cfg.DataDir, name)
	if err := market.ExportDebugCSV(path, bars); err != nil {
		logger.Warn(ctx, "Failed to export debug CSV", "path", path, "error", err)
	} else {
		logger.Info(ctx, "Debug CSV exported", "path", path, "bars", len(bars))
	}
	return bars, nil
}

// buildDecider returns the primary decider for the configured provider, or
// nil to run on the rule-based policy alone.
func buildDecider(ctx context.Context, cfg *store.Config) interfaces.Decider {
	var d interfaces.Decider
	switch cfg.LLM.Provider {
	case "OPENAI":
		d = openai.NewOpenAIDecider(cfg)
	case "CLAUDE":
		d = claude.NewClaudeDecider(cfg)
	case "NOOP":
		d = noop.NewNoopDecider()
	default:
		logger.Info(ctx, "No external decider configured, using rule-based policy")
		return nil
	}
	logger.Info(ctx, "Decider initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	return llmobs.Wrap(d)
}

type app struct {
	cfg    *store.Config
	eng    *engine.Engine
	step   interfaces.Engine
	hub    *chart.Hub
	runner *engine.Runner
}

// buildApp wires the session, chart hub and runner for cfg.
func buildApp(ctx context.Context, cfg *store.Config) (*app, error) {
	setupTradeLog(ctx, cfg)

	bars, err := prepareBars(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rec := chart.NewRecorder()
	hub := chart.NewHub(rec.Events)
	rec.Attach(hub)

	opts := []engine.Option{
		engine.WithTradeLog(),
		engine.WithEOD(eodobs.Wrap(eod.NewSummarizer(cfg.Logs.Dir))),
	}
	if d := buildDecider(ctx, cfg); d != nil {
		opts = append(opts, engine.WithDecider(d))
	}
	eng, err := engine.New(ctx, cfg, bars, rec, opts...)
	if err != nil {
		return nil, err
	}

	realtime := cfg.RealtimeInterval(eng.BarDuration())
	logger.Info(ctx, "Runner cadence", "fast", cfg.FastInterval(), "realtime", realtime)

	step := engineobs.Wrap(eng)
	return &app{
		cfg:    cfg,
		eng:    eng,
		step:   step,
		hub:    hub,
		runner: engine.NewRunner(step, cfg.FastInterval(), realtime),
	}, nil
}
