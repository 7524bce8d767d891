package types

import "time"

// Side of a fill or decision.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// Trend classifications produced by the indicator engine.
const (
	TrendBullish = "BULLISH"
	TrendBearish = "BEARISH"
	TrendNeutral = "NEUTRAL"
)

// Bar is one minute (or N-minute) interval of market activity.
type Bar struct {
	Time                   time.Time
	Open, High, Low, Close float64
	Volume                 float64
}

// BarRecord is the append-only history entry for a traded bar. Close and
// BarPnL are only set once the bar was committed.
type BarRecord struct {
	Time       time.Time  `json:"timestamp"`
	Open       float64    `json:"open"`
	Volume     float64    `json:"volume"`
	Indicators Indicators `json:"indicators"`
	Close      *float64   `json:"close,omitempty"`
	BarPnL     *float64   `json:"bar_pnl,omitempty"`
}

// Closed reports whether the close of this record is known.
func (r BarRecord) Closed() bool { return r.Close != nil }

type Indicators struct {
	InsufficientData bool    `json:"insufficient_data,omitempty"`
	SMA5             float64 `json:"sma_5,omitempty"`
	SMA10            float64 `json:"sma_10,omitempty"`
	SMA20            float64 `json:"sma_20,omitempty"`
	MomentumPct      float64 `json:"momentum_pct,omitempty"`
	PriceVsSMA5Pct   float64 `json:"price_vs_sma5_pct,omitempty"`
	VolumeSpike      float64 `json:"volume_spike,omitempty"`
	AvgVolume        float64 `json:"avg_volume,omitempty"`
	Trend            string  `json:"trend_signal,omitempty"`
	EMA20            float64 `json:"ema_20,omitempty"`
	RSI14            float64 `json:"rsi_14,omitempty"`
}

type Decision struct {
	Action     string  `json:"action"`
	Qty        int     `json:"qty"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence,omitempty"`
	Source     string  `json:"source,omitempty"`
}

// Hold builds a HOLD decision with the given rationale.
func Hold(reason string) Decision {
	return Decision{Action: ActionHold, Reason: reason}
}

// Fill is an executed buy or sell. Immutable once appended.
type Fill struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"ts"`
	Side   string    `json:"side"`
	Qty    int       `json:"qty"`
	Price  float64   `json:"price"`
	Reason string    `json:"reason,omitempty"`
}

// Snapshot is the read-only projection of the portfolio ledger.
type Snapshot struct {
	Cash               float64 `json:"cash"`
	Shares             int     `json:"shares"`
	AvgCost            float64 `json:"avg_cost"`
	LastPrice          float64 `json:"last_price"`
	RealizedPnL        float64 `json:"realized_pnl"`
	UnrealizedPnL      float64 `json:"unrealized_pnl"`
	TotalPnL           float64 `json:"total_pnl"`
	TotalValue         float64 `json:"total_value"`
	CashUtilizationPct float64 `json:"cash_utilization"`
}

// TradeRecord is a fill annotated with its realized pnl (SELL only).
type TradeRecord struct {
	Time    time.Time `json:"timestamp"`
	Side    string    `json:"side"`
	Qty     int       `json:"qty"`
	Price   float64   `json:"price"`
	PnL     float64   `json:"pnl"`
	AvgCost float64   `json:"avg_cost,omitempty"`
}

type PerformanceMetrics struct {
	TotalTrades int     `json:"total_trades"`
	WinRate     float64 `json:"win_rate"`
	AvgPnL      float64 `json:"avg_pnl"`
	BestTrade   float64 `json:"best_trade"`
	WorstTrade  float64 `json:"worst_trade"`
}

type RecentPerformance struct {
	Trades  int     `json:"recent_trades"`
	AvgPnL  float64 `json:"recent_avg_pnl"`
	WinRate float64 `json:"recent_win_rate"`
}

// MemoryView is what deciders get to see of the trading memory.
type MemoryView struct {
	TotalTrades    int                `json:"total_trades"`
	Metrics        PerformanceMetrics `json:"performance_metrics"`
	Recent         RecentPerformance  `json:"recent_performance"`
	LastTrades     []TradeRecord      `json:"last_5_trades"`
	HistoricalBars int                `json:"historical_bars_count"`
}

// DecisionRequest carries everything a decider may base a decision on.
type DecisionRequest struct {
	Symbol     string     `json:"symbol"`
	Time       time.Time  `json:"timestamp"`
	Open       float64    `json:"open"`
	Volume     float64    `json:"volume"`
	Indicators Indicators `json:"indicators"`
	Portfolio  Snapshot   `json:"portfolio"`
	Memory     MemoryView `json:"trading_memory"`
}

// Chart event kinds consumed by the rendering collaborator.
const (
	ChartInitContext = "init_context"
	ChartCandle      = "append_live_candle"
	ChartMarker      = "add_trade_marker"
)

type Candle struct {
	Time  time.Time `json:"ts"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

type ChartEvent struct {
	Kind    string    `json:"kind"`
	Time    time.Time `json:"ts,omitempty"`
	Open    float64   `json:"open,omitempty"`
	Close   float64   `json:"close,omitempty"`
	Price   float64   `json:"price,omitempty"`
	Side    string    `json:"side,omitempty"`
	Candles []Candle  `json:"candles,omitempty"`
}

type OverrideResult struct {
	Command  string `json:"command"`
	Executed bool   `json:"executed"`
	Shares   int    `json:"shares,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type StepResult struct {
	Done      bool            `json:"done"`
	Index     int             `json:"index"`
	Time      time.Time       `json:"time,omitempty"`
	Open      float64         `json:"open,omitempty"`
	Close     float64         `json:"close,omitempty"`
	Decision  *Decision       `json:"decision,omitempty"`
	Override  *OverrideResult `json:"manual_override,omitempty"`
	Fills     []Fill          `json:"fills,omitempty"`
	Portfolio Snapshot        `json:"portfolio"`
	Logs      []string        `json:"logs"`
	Events    []ChartEvent    `json:"events,omitempty"`
}
