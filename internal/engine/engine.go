package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/llm/rules"
	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/market"
	"llm-paper-trader/internal/store"
	"llm-paper-trader/internal/ta"
	"llm-paper-trader/internal/tradelog"
	"llm-paper-trader/internal/types"
)

const (
	stepLogLines  = 200
	publishedLogs = 1000
	winRateOnLog  = 5
)

var ErrInvalidDecision = errors.New("invalid decision")

// Status is the published progress of a session.
type Status struct {
	SessionID string    `json:"session_id"`
	Ticker    string    `json:"ticker"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	Remaining int       `json:"remaining"`
	Done      bool      `json:"done"`
	Pending   []Command `json:"pending_overrides"`
	LastBar   time.Time `json:"last_bar,omitempty"`
}

// view is what readers observe between steps.
type view struct {
	status   Status
	snapshot types.Snapshot
	memory   types.MemoryView
	logs     []string
}

// Engine drives one Session through PEEK, OVERRIDE, DECIDE, ORDER and CLOSE
// per step. Steps are serialized; reads go to the last published view.
type Engine struct {
	cfg       *store.Config
	s         *Session
	primary   interfaces.Decider
	fallback  interfaces.Decider
	timeout   time.Duration
	audit     bool
	eod       interfaces.EodSummarizer
	overrides overrideQueue

	mu      sync.Mutex
	pending []pendingTrade

	notesMu sync.Mutex
	notes   []string

	viewMu sync.RWMutex
	view   view
}

type pendingTrade struct {
	fill      types.Fill
	avgBefore float64
}

var _ interfaces.Engine = (*Engine)(nil)

func newEngine(cfg *store.Config, s *Session, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		s:        s,
		fallback: rules.New(cfg.Policy),
		timeout:  cfg.DecisionTimeout(),
	}
	for _, o := range opts {
		o(e)
	}
	e.publish()
	return e
}

// Session exposes the engine's session for read-only inspection in tests
// and the replay command. Not safe while steps run.
func (e *Engine) Session() *Session { return e.s }

// Step advances the session by one bar.
func (e *Engine) Step(ctx context.Context) (*types.StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.s
	e.drainNotes()
	logStart := len(s.logs)
	evStart := s.chart.Len()

	peek, ok := s.stream.PeekNextOpenVolume()
	if !ok {
		return e.finish(ctx), nil
	}

	// PEEK
	s.ledger.Mark(peek.Open)
	ind := ta.Compute(s.records, peek.Open, peek.Volume)
	s.records = append(s.records, types.BarRecord{
		Time:       peek.Time,
		Open:       peek.Open,
		Volume:     peek.Volume,
		Indicators: ind,
	})
	res := &types.StepResult{Index: peek.Index, Time: peek.Time, Open: peek.Open}

	// OVERRIDE
	if cmd, ok := e.takeOverride(); ok {
		or := e.applyOverride(ctx, cmd, peek)
		res.Override = &or
	}

	// DECIDE + ORDER
	if res.Override == nil || !res.Override.Executed {
		d, fellBack := e.decide(ctx, peek, ind)
		res.Decision = &d
		e.act(ctx, d, fellBack, peek, ind)
	}

	// CLOSE
	c, ok := s.stream.CommitCloseAndAdvance()
	if !ok {
		return nil, fmt.Errorf("step %d: %w", peek.Index, market.ErrDataUnavailable)
	}
	s.ledger.Mark(c.Close)
	closePx := c.Close
	barPnL := c.Close - peek.Open
	last := &s.records[len(s.records)-1]
	last.Close = &closePx
	last.BarPnL = &barPnL
	s.chart.AppendLiveCandle(c.Time, peek.Open, c.Close)

	for _, p := range e.pending {
		s.memory.Record(p.fill, p.avgBefore)
		res.Fills = append(res.Fills, p.fill)
	}
	e.pending = e.pending[:0]

	snap := s.ledger.Snapshot()
	s.log(ctx, fmt.Sprintf("📊 BAR CLOSE [%s] O=₹%.2f C=₹%.2f | Cash: ₹%.2f | Shares: %d | PnL: ₹%.2f | Win Rate: %.1f%%",
		c.Time.Format("15:04"), peek.Open, c.Close, snap.Cash, snap.Shares, snap.TotalPnL,
		s.memory.WinRate(winRateOnLog)*100))

	res.Close = c.Close
	res.Portfolio = snap
	res.Logs = tail(s.logs[logStart:], stepLogLines)
	res.Events = s.chart.EventsSince(evStart)
	e.publish()
	return res, nil
}

// finish logs the final summary once and returns the terminal result.
func (e *Engine) finish(ctx context.Context) *types.StepResult {
	s := e.s
	logStart := len(s.logs)
	if !s.finished {
		s.finished = true
		snap := s.ledger.Snapshot()
		mt := s.memory.Metrics()
		s.log(ctx, "🏁 TRADING COMPLETE!")
		s.log(ctx, fmt.Sprintf("📈 FINAL RESULTS: PnL=₹%.2f | Total Trades: %d | Win Rate: %.1f%%",
			snap.TotalPnL, mt.TotalTrades, mt.WinRate*100))
		if e.eod != nil {
			path, err := e.eod.Summarize(s.Ticker, s.ledger.Fills(), snap)
			switch {
			case err != nil:
				logger.ErrorWithErr(ctx, "EOD summary failed", err, "symbol", s.Ticker)
			case path != "":
				s.log(ctx, "🧾 EOD summary written: "+path)
			}
		}
		e.publish()
	}
	return &types.StepResult{
		Done:      true,
		Index:     s.stream.Index(),
		Portfolio: s.ledger.Snapshot(),
		Logs:      tail(s.logs[logStart:], stepLogLines),
	}
}

func (e *Engine) request(peek market.Peek, ind types.Indicators) types.DecisionRequest {
	s := e.s
	return types.DecisionRequest{
		Symbol:     s.Ticker,
		Time:       peek.Time,
		Open:       peek.Open,
		Volume:     peek.Volume,
		Indicators: ind,
		Portfolio:  s.ledger.Snapshot(),
		Memory:     s.memory.View(e.cfg.Policy.WinRateWindow, len(s.records)),
	}
}

// decide asks the primary decider and falls back to the rules on any
// failure. The second result reports whether the fallback was used.
func (e *Engine) decide(ctx context.Context, peek market.Peek, ind types.Indicators) (types.Decision, bool) {
	req := e.request(peek, ind)
	if e.primary == nil {
		d, _ := e.fallback.Decide(ctx, req)
		return d, false
	}
	d, err := e.callPrimary(ctx, req)
	if err == nil {
		return d, false
	}
	e.s.log(ctx, "⚠️ Agent error, using fallback: "+err.Error())
	logger.Risk(ctx, e.s.Ticker, "DECIDER_FALLBACK", "error", err.Error(), "bar_index", peek.Index)
	d, _ = e.fallback.Decide(ctx, req)
	return d, true
}

// callPrimary runs the primary decider under the decision timeout. A decider
// that ignores its context is abandoned once the deadline passes.
func (e *Engine) callPrimary(ctx context.Context, req types.DecisionRequest) (types.Decision, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type result struct {
		d   types.Decision
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("decider panic: %v", r)}
			}
		}()
		d, err := e.primary.Decide(ctx, req)
		ch <- result{d: d, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return types.Decision{}, r.err
		}
		return r.d, validate(r.d)
	case <-ctx.Done():
		return types.Decision{}, fmt.Errorf("decision timed out: %w", ctx.Err())
	}
}

func validate(d types.Decision) error {
	switch d.Action {
	case types.ActionHold:
		return nil
	case types.ActionBuy, types.ActionSell:
		if d.Qty <= 0 {
			return fmt.Errorf("%w: %s with qty %d", ErrInvalidDecision, d.Action, d.Qty)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidDecision, d.Action)
	}
}

// act records the decision and places its order, if any.
func (e *Engine) act(ctx context.Context, d types.Decision, fellBack bool, peek market.Peek, ind types.Indicators) {
	s := e.s
	logger.Decision(ctx, s.Ticker, d.Action, d.Qty, d.Source, d.Reason,
		"bar_index", peek.Index, "open", peek.Open, "fallback", fellBack)
	if e.audit {
		if err := tradelog.AppendDecision(tradelog.DecisionEntry{
			BarTime:    peek.Time,
			SessionID:  s.ID,
			Symbol:     s.Ticker,
			Action:     d.Action,
			Qty:        d.Qty,
			Reason:     d.Reason,
			Source:     d.Source,
			Confidence: d.Confidence,
			Open:       peek.Open,
			Indicators: ind,
			Fallback:   fellBack,
		}); err != nil {
			logger.Warn(ctx, "Failed to append decision log", "error", err)
		}
	}

	if d.Action == types.ActionHold || d.Qty <= 0 {
		prefix := "⏸️ HOLD"
		if fellBack {
			prefix = "⏸️ FALLBACK HOLD"
		}
		s.log(ctx, fmt.Sprintf("%s - %s | Open=₹%.2f Volume=%.0f", prefix, d.Reason, peek.Open, peek.Volume))
		return
	}
	label := strings.ToUpper(d.Source)
	if label == "" {
		label = "AGENT"
	}
	e.execute(ctx, d.Action, d.Qty, peek, d.Reason, label, false)
}

// execute places an order against the ledger at the bar open. Rejections
// are logged and not retried.
func (e *Engine) execute(ctx context.Context, side string, qty int, peek market.Peek, reason, label string, override bool) (types.Fill, bool) {
	s := e.s
	avgBefore := s.ledger.AvgCost()

	var (
		fill types.Fill
		err  error
	)
	switch side {
	case types.ActionBuy:
		fill, err = s.ledger.Buy(peek.Time, qty, peek.Open, reason)
	case types.ActionSell:
		fill, err = s.ledger.Sell(peek.Time, qty, peek.Open, reason)
	default:
		err = fmt.Errorf("%w: side %q", ErrInvalidDecision, side)
	}
	if err != nil {
		s.log(ctx, fmt.Sprintf("❌ %s %s %d @ ₹%.2f REJECTED: %v", label, side, qty, peek.Open, err))
		logger.Risk(ctx, s.Ticker, "ORDER_REJECTED", "side", side, "qty", qty, "price", peek.Open, "error", err.Error())
		return types.Fill{}, false
	}

	e.pending = append(e.pending, pendingTrade{fill: fill, avgBefore: avgBefore})
	s.chart.AddTradeMarker(fill.Time, fill.Price, fill.Side)
	logger.Trade(ctx, s.Ticker, fill.Side, fill.Qty, fill.Price, fill.ID, "reason", reason, "override", override)
	if e.audit {
		if err := tradelog.Append(tradelog.Entry{
			BarTime:   peek.Time,
			SessionID: s.ID,
			Symbol:    s.Ticker,
			Side:      fill.Side,
			Qty:       fill.Qty,
			Price:     fill.Price,
			FillID:    fill.ID,
			Reason:    reason,
			Source:    strings.ToLower(label),
			Override:  override,
		}); err != nil {
			logger.Warn(ctx, "Failed to append trade log", "error", err)
		}
	}

	ts := peek.Time.Format("15:04")
	if side == types.ActionBuy {
		s.log(ctx, fmt.Sprintf("🟢 %s BUY %d @ ₹%.2f [%s] - Position: %d", label, fill.Qty, fill.Price, ts, s.ledger.Shares()))
	} else {
		pnl := (fill.Price - avgBefore) * float64(fill.Qty)
		s.log(ctx, fmt.Sprintf("🔴 %s SELL %d @ ₹%.2f [%s] - PnL: ₹%.2f - Remaining: %d", label, fill.Qty, fill.Price, ts, pnl, s.ledger.Shares()))
	}
	return fill, true
}

// applyOverride executes a manual command at the bar open. Commands that
// have nothing to act on are still consumed.
func (e *Engine) applyOverride(ctx context.Context, cmd Command, peek market.Peek) types.OverrideResult {
	s := e.s
	out := types.OverrideResult{Command: string(cmd)}
	switch cmd {
	case CmdSellAll:
		shares := s.ledger.Shares()
		if shares <= 0 {
			out.Reason = "no shares to sell"
			break
		}
		if _, ok := e.execute(ctx, types.ActionSell, shares, peek, "manual_sell_all", "MANUAL", true); ok {
			out.Executed, out.Shares = true, shares
		} else {
			out.Reason = "order rejected"
		}
	case CmdBuyMax:
		cash := s.ledger.Cash().InexactFloat64()
		if cash < peek.Open {
			out.Reason = "insufficient cash"
			break
		}
		qty := max(1, int(e.cfg.Policy.ManualBuyCashFrac*cash/peek.Open))
		if _, ok := e.execute(ctx, types.ActionBuy, qty, peek, "manual_buy_max", "MANUAL", true); ok {
			out.Executed, out.Shares = true, qty
		} else {
			out.Reason = "order rejected"
		}
	default:
		out.Reason = "unknown command"
	}
	if !out.Executed {
		s.log(ctx, fmt.Sprintf("ℹ️ MANUAL %s skipped: %s", cmd, out.Reason))
	}
	return out
}

// Override queues a manual command for the next step. It never waits for a
// step in progress. Queuing a command that is already pending is a no-op.
func (e *Engine) Override(ctx context.Context, cmd Command) error {
	switch cmd {
	case CmdSellAll, CmdBuyMax:
	default:
		return fmt.Errorf("unknown override %q", cmd)
	}
	msg := "🚨 MANUAL SELL ALL TRIGGERED - Will execute on next step"
	if cmd == CmdBuyMax {
		msg = "🚨 MANUAL BUY MAX TRIGGERED - Will execute on next step"
	}

	// viewMu orders this against publish, which rebuilds the pending list
	// and the logs from the queue and the notes.
	e.viewMu.Lock()
	defer e.viewMu.Unlock()
	e.notesMu.Lock()
	pushed := e.overrides.push(cmd)
	if pushed {
		e.notes = append(e.notes, msg)
	}
	e.notesMu.Unlock()
	if !pushed {
		return nil
	}
	logger.Info(ctx, msg, "symbol", e.s.Ticker)
	e.view.logs = append(e.view.logs, msg)
	e.view.status.Pending = e.overrides.list()
	return nil
}

// drainNotes moves lines queued from outside the step path into the
// session log. Callers hold mu.
func (e *Engine) drainNotes() {
	e.notesMu.Lock()
	defer e.notesMu.Unlock()
	e.s.logs = append(e.s.logs, e.notes...)
	e.notes = nil
}

// takeOverride drains notes and takes the next command together, so a
// trigger line is always logged before the command it announces runs.
// Callers hold mu.
func (e *Engine) takeOverride() (Command, bool) {
	e.notesMu.Lock()
	defer e.notesMu.Unlock()
	e.s.logs = append(e.s.logs, e.notes...)
	e.notes = nil
	return e.overrides.take()
}

// publish copies the session state into the read view. Callers hold mu.
func (e *Engine) publish() {
	s := e.s
	v := view{
		status: Status{
			SessionID: s.ID,
			Ticker:    s.Ticker,
			Index:     s.stream.Index(),
			Total:     s.stream.Len(),
			Remaining: s.stream.Remaining(),
			Done:      s.stream.Done(),
		},
		snapshot: s.ledger.Snapshot(),
		memory:   s.memory.View(e.cfg.Policy.WinRateWindow, len(s.records)),
	}
	if n := len(s.records); n > 0 {
		v.status.LastBar = s.records[n-1].Time
	}
	e.viewMu.Lock()
	defer e.viewMu.Unlock()
	e.drainNotes()
	v.logs = tail(s.logs, publishedLogs)
	v.status.Pending = e.overrides.list()
	e.view = v
}

func (e *Engine) Snapshot() types.Snapshot {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.view.snapshot
}

// Logs returns the last n published log lines, all of them when n <= 0.
func (e *Engine) Logs(n int) []string {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return tail(e.view.logs, n)
}

func (e *Engine) Memory() types.MemoryView {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.view.memory
}

func (e *Engine) Status() Status {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	st := e.view.status
	st.Pending = append([]Command(nil), st.Pending...)
	return st
}

// Chart returns every chart event recorded so far.
func (e *Engine) Chart() []types.ChartEvent {
	return e.s.chart.Events()
}

// BarDuration is the spacing of the session's traded bars. The trade span is
// fixed at construction, so this needs no lock.
func (e *Engine) BarDuration() time.Duration {
	return market.BarDuration(e.s.stream.TradeBars())
}
