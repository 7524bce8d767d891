package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/logger"
)

const (
	ModeFast     = "fast"
	ModeRealtime = "realtime"
)

// Runner steps an engine in the background until the session is done or it
// is paused. The stop signal is observed once per iteration and while
// waiting between steps; a step in progress always completes.
type Runner struct {
	eng      interfaces.Engine
	fast     time.Duration
	realtime time.Duration

	mu    sync.Mutex
	stop  chan struct{}
	done  chan struct{}
	mode  string
	steps atomic.Int64
}

func NewRunner(eng interfaces.Engine, fast, realtime time.Duration) *Runner {
	return &Runner{eng: eng, fast: fast, realtime: realtime}
}

func (r *Runner) interval(mode string) (time.Duration, error) {
	switch mode {
	case ModeFast, "":
		return r.fast, nil
	case ModeRealtime:
		return r.realtime, nil
	default:
		return 0, fmt.Errorf("unknown runner mode %q", mode)
	}
}

// Start launches the loop unless it is already running and reports whether
// it did. The loop outlives ctx cancellation of the caller's request.
func (r *Runner) Start(ctx context.Context, mode string) (bool, error) {
	every, err := r.interval(mode)
	if err != nil {
		return false, err
	}
	if mode == "" {
		mode = ModeFast
	}

	r.mu.Lock()
	for {
		if r.activeLocked() {
			r.mu.Unlock()
			return false, nil
		}
		prev := r.done
		if prev == nil || isClosed(prev) {
			break
		}
		// A paused loop is still finishing its last step.
		r.mu.Unlock()
		<-prev
		r.mu.Lock()
	}
	defer r.mu.Unlock()
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.mode = mode
	go r.loop(context.WithoutCancel(ctx), every, r.stop, r.done)

	logger.Info(ctx, "🤖 Runner started", "mode", mode, "interval_ms", every.Milliseconds())
	return true, nil
}

// Pause asks the loop to stop after the current iteration. It does not wait.
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop == nil {
		return
	}
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked()
}

// Mode is the mode of the last start.
func (r *Runner) Mode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Steps is the number of steps the runner has executed.
func (r *Runner) Steps() int64 { return r.steps.Load() }

// Wait blocks until the current loop, if any, has exited.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (r *Runner) activeLocked() bool {
	if r.done == nil || isClosed(r.done) {
		return false
	}
	return !isClosed(r.stop)
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (r *Runner) loop(ctx context.Context, every time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			logger.Info(ctx, "⏸️ Runner paused", "steps", r.steps.Load())
			return
		default:
		}

		n := r.steps.Add(1)
		logger.Info(ctx, fmt.Sprintf("🤖 executing step %d", n))
		res, err := r.eng.Step(ctx)
		if err != nil {
			logger.ErrorWithErr(ctx, "Runner step failed", err, "step", n)
		} else if res.Done {
			logger.Info(ctx, "🏁 Runner finished", "steps", n)
			return
		}

		if every <= 0 {
			continue
		}
		t := time.NewTimer(every)
		select {
		case <-stop:
			t.Stop()
		case <-t.C:
		}
	}
}
