package memory

import (
	"llm-paper-trader/internal/types"
)

// DefaultWinRate is assumed while no position has been closed yet.
const DefaultWinRate = 0.5

const lastTradesInView = 5

// Memory is the session's trade history plus the metrics derived from it.
// Metrics are recomputed on every Record. Not safe for concurrent use.
type Memory struct {
	trades  []types.TradeRecord
	metrics types.PerformanceMetrics
}

func New() *Memory {
	return &Memory{}
}

// Record appends a fill. For sells, avgCost is the average cost the shares
// were carried at before the sale, and the realized pnl is derived from it.
func (m *Memory) Record(f types.Fill, avgCost float64) types.TradeRecord {
	tr := types.TradeRecord{
		Time:  f.Time,
		Side:  f.Side,
		Qty:   f.Qty,
		Price: f.Price,
	}
	if f.Side == types.ActionSell {
		tr.AvgCost = avgCost
		tr.PnL = (f.Price - avgCost) * float64(f.Qty)
	}
	m.trades = append(m.trades, tr)
	m.recompute()
	return tr
}

func (m *Memory) recompute() {
	closed := m.closed(0)
	mt := types.PerformanceMetrics{TotalTrades: len(m.trades)}
	if len(closed) > 0 {
		wins, sum := 0, 0.0
		mt.BestTrade, mt.WorstTrade = closed[0].PnL, closed[0].PnL
		for _, t := range closed {
			if t.PnL > 0 {
				wins++
			}
			sum += t.PnL
			mt.BestTrade = max(mt.BestTrade, t.PnL)
			mt.WorstTrade = min(mt.WorstTrade, t.PnL)
		}
		mt.WinRate = float64(wins) / float64(len(closed))
		mt.AvgPnL = sum / float64(len(closed))
	}
	m.metrics = mt
}

// closed returns the last n sell records, or all of them when n <= 0.
func (m *Memory) closed(n int) []types.TradeRecord {
	var out []types.TradeRecord
	for _, t := range m.trades {
		if t.Side == types.ActionSell {
			out = append(out, t)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func (m *Memory) Metrics() types.PerformanceMetrics { return m.metrics }

// Recent summarizes the last n closed trades. Zero value when there are none.
func (m *Memory) Recent(n int) types.RecentPerformance {
	recent := m.closed(n)
	if len(recent) == 0 {
		return types.RecentPerformance{}
	}
	wins, sum := 0, 0.0
	for _, t := range recent {
		if t.PnL > 0 {
			wins++
		}
		sum += t.PnL
	}
	return types.RecentPerformance{
		Trades:  len(recent),
		AvgPnL:  sum / float64(len(recent)),
		WinRate: float64(wins) / float64(len(recent)),
	}
}

// WinRate is the win rate over the last n closed trades, DefaultWinRate
// when nothing has been closed yet.
func (m *Memory) WinRate(n int) float64 {
	r := m.Recent(n)
	if r.Trades == 0 {
		return DefaultWinRate
	}
	return r.WinRate
}

func (m *Memory) Len() int { return len(m.trades) }

func (m *Memory) Trades() []types.TradeRecord {
	out := make([]types.TradeRecord, len(m.trades))
	copy(out, m.trades)
	return out
}

// View builds the read-only projection handed to deciders and the HTTP
// surface. historicalBars is the number of bar records seen so far.
func (m *Memory) View(recentWindow, historicalBars int) types.MemoryView {
	last := m.trades
	if len(last) > lastTradesInView {
		last = last[len(last)-lastTradesInView:]
	}
	lastCopy := make([]types.TradeRecord, len(last))
	copy(lastCopy, last)
	return types.MemoryView{
		TotalTrades:    len(m.trades),
		Metrics:        m.metrics,
		Recent:         m.Recent(recentWindow),
		LastTrades:     lastCopy,
		HistoricalBars: historicalBars,
	}
}
