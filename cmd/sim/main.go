package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/server"
	"llm-paper-trader/internal/trace"
	"llm-paper-trader/internal/types"

	"github.com/urfave/cli/v2"
)

var configPath string

func main() {
	app := cli.NewApp()
	app.Name = "sim"
	app.Usage = "replay intraday bars through the simulated trading engine"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       "config.yaml",
			Usage:       "path to the YAML config",
			Destination: &configPath,
		},
	}
	app.Before = func(*cli.Context) error {
		return initializeSystem()
	}
	app.After = func(*cli.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return trace.Shutdown(ctx)
	}
	app.Commands = []*cli.Command{
		serveCommand,
		replayCommand,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "serve the manual control surface and chart stream",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "listen address, overrides server.addr",
		},
		&cli.StringFlag{
			Name:  "autostart",
			Usage: "start the runner immediately in this mode (fast|realtime)",
		},
	},
	Action: serve,
}

var replayCommand = &cli.Command{
	Name:   "replay",
	Usage:  "run the session to completion headless and print the final state",
	Action: replay,
}

func serve(c *cli.Context) error {
	ctx := c.Context
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.hub.Close()

	if mode := c.String("autostart"); mode != "" {
		if _, err := a.runner.Start(ctx, mode); err != nil {
			return err
		}
	}

	addr := cfg.Server.Addr
	if v := c.String("addr"); v != "" {
		addr = v
	}
	srv := server.New(a.eng, a.step, a.runner, a.hub)
	err = srv.ListenAndServe(ctx, addr)

	a.runner.Pause()
	a.runner.Wait()
	logger.Info(context.Background(), "Shutting down...")
	return err
}

type replayOutput struct {
	SessionID string           `json:"session_id"`
	Ticker    string           `json:"ticker"`
	Bars      int              `json:"bars"`
	Portfolio types.Snapshot   `json:"portfolio"`
	Memory    types.MemoryView `json:"trading_memory"`
}

func replay(c *cli.Context) error {
	ctx := c.Context
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.hub.Close()

	for ctx.Err() == nil {
		res, err := a.step.Step(ctx)
		if err != nil {
			return err
		}
		if res.Done {
			break
		}
	}

	st := a.eng.Status()
	out := replayOutput{
		SessionID: st.SessionID,
		Ticker:    st.Ticker,
		Bars:      st.Index,
		Portfolio: a.eng.Snapshot(),
		Memory:    a.eng.Memory(),
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
