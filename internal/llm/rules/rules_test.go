package rules

import (
	"context"
	"testing"

	"llm-paper-trader/internal/store"
	"llm-paper-trader/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strongBull() types.Indicators {
	return types.Indicators{
		SMA5:           99.5,
		SMA10:          99,
		SMA20:          98,
		MomentumPct:    0.2,
		PriceVsSMA5Pct: 0.5,
		VolumeSpike:    2.0,
		Trend:          types.TrendBullish,
	}
}

func request(ind types.Indicators, snap types.Snapshot, recent types.RecentPerformance) types.DecisionRequest {
	return types.DecisionRequest{
		Symbol:     "TEST",
		Open:       100,
		Volume:     2000,
		Indicators: ind,
		Portfolio:  snap,
		Memory:     types.MemoryView{Recent: recent, HistoricalBars: 30},
	}
}

func flat(cash float64) types.Snapshot {
	return types.Snapshot{Cash: cash, LastPrice: 100}
}

func long(cash float64, shares int, avg, last float64) types.Snapshot {
	return types.Snapshot{
		Cash:          cash,
		Shares:        shares,
		AvgCost:       avg,
		LastPrice:     last,
		UnrealizedPnL: (last - avg) * float64(shares),
	}
}

func decide(t *testing.T, req types.DecisionRequest) types.Decision {
	t.Helper()
	d, err := New(store.DefaultPolicy()).Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Source, d.Source)
	return d
}

func TestStrongEntrySizing(t *testing.T) {
	tests := []struct {
		name    string
		recent  types.RecentPerformance
		wantQty int
		reason  string
	}{
		// No closed trades yet: default win rate 0.5 -> 35% of cash.
		{name: "no history", wantQty: 35, reason: "strong_buy_signal_wr_0.50"},
		// 90% deployment capped by 50% per trade.
		{name: "hot streak", recent: types.RecentPerformance{Trades: 10, WinRate: 0.7}, wantQty: 50, reason: "strong_buy_signal_wr_0.70"},
		{name: "cold streak", recent: types.RecentPerformance{Trades: 10, WinRate: 0.3}, wantQty: 25, reason: "strong_buy_signal_wr_0.30"},
		{name: "boundary 0.6 is moderate", recent: types.RecentPerformance{Trades: 5, WinRate: 0.6}, wantQty: 35, reason: "strong_buy_signal_wr_0.60"},
		{name: "boundary 0.4 is conservative", recent: types.RecentPerformance{Trades: 5, WinRate: 0.4}, wantQty: 25, reason: "strong_buy_signal_wr_0.40"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decide(t, request(strongBull(), flat(10000), tt.recent))
			assert.Equal(t, types.ActionBuy, d.Action)
			assert.Equal(t, tt.wantQty, d.Qty)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestMediumEntryIsHalfSized(t *testing.T) {
	ind := types.Indicators{Trend: types.TrendNeutral, VolumeSpike: 1.3, MomentumPct: 0.05, SMA5: 100, SMA10: 100}
	d := decide(t, request(ind, flat(10000), types.RecentPerformance{}))
	assert.Equal(t, types.ActionBuy, d.Action)
	assert.Equal(t, 17, d.Qty)
	assert.Equal(t, "medium_buy_signal_wr_0.50", d.Reason)
}

func TestZeroQuantityDegradesToHold(t *testing.T) {
	// 35% of 150 cannot buy a single share at 100.
	ind := types.Indicators{Trend: types.TrendNeutral, VolumeSpike: 1.3, MomentumPct: 0.05}
	d := decide(t, request(ind, flat(150), types.RecentPerformance{}))
	assert.Equal(t, types.ActionHold, d.Action)
	assert.Zero(t, d.Qty)

	d = decide(t, request(strongBull(), flat(50), types.RecentPerformance{}))
	assert.Equal(t, types.ActionHold, d.Action)
}

func TestScaleIntoWinner(t *testing.T) {
	snap := long(6000, 30, 95, 100)
	d := decide(t, request(strongBull(), snap, types.RecentPerformance{}))
	assert.Equal(t, types.ActionBuy, d.Action)
	assert.Equal(t, 10, d.Qty)
	assert.Equal(t, "scale_into_winner_pnl_150.00", d.Reason)
}

func TestScaleInCappedByDeployment(t *testing.T) {
	// total value 10000, deployment 70% leaves 1000 of headroom -> 10 shares.
	snap := long(4000, 60, 95, 100)
	d := decide(t, request(strongBull(), snap, types.RecentPerformance{}))
	assert.Equal(t, types.ActionBuy, d.Action)
	assert.Equal(t, 10, d.Qty)
}

func TestStopLossSellsEverything(t *testing.T) {
	ind := types.Indicators{Trend: types.TrendNeutral, VolumeSpike: 1, MomentumPct: 0}
	snap := long(5000, 50, 100, 97)
	req := request(ind, snap, types.RecentPerformance{})
	req.Open = 97

	d := decide(t, req)
	assert.Equal(t, types.ActionSell, d.Action)
	assert.Equal(t, 50, d.Qty)
	assert.Equal(t, "exit_signal_pnl_-150.00", d.Reason)
}

func TestExitSignals(t *testing.T) {
	snap := long(5000, 12, 100, 100.5)
	for name, ind := range map[string]types.Indicators{
		"bearish trend": {Trend: types.TrendBearish, VolumeSpike: 1},
		"momentum drop": {Trend: types.TrendNeutral, MomentumPct: -0.2},
	} {
		t.Run(name, func(t *testing.T) {
			d := decide(t, request(ind, snap, types.RecentPerformance{}))
			assert.Equal(t, types.ActionSell, d.Action)
			assert.Equal(t, 12, d.Qty)
		})
	}
}

func TestPartialProfitTake(t *testing.T) {
	ind := types.Indicators{Trend: types.TrendNeutral, VolumeSpike: 1, MomentumPct: 0.01}
	snap := long(5000, 10, 100, 104)
	req := request(ind, snap, types.RecentPerformance{})
	req.Open = 104

	d := decide(t, req)
	assert.Equal(t, types.ActionSell, d.Action)
	assert.Equal(t, 3, d.Qty)
	assert.Equal(t, "partial_profit_pnl_40.00", d.Reason)

	snap = long(5000, 2, 100, 104)
	req.Portfolio = snap
	d = decide(t, req)
	assert.Equal(t, 1, d.Qty)
}

func TestInsufficientHistory(t *testing.T) {
	req := request(strongBull(), flat(10000), types.RecentPerformance{})
	req.Memory.HistoricalBars = 4
	d := decide(t, req)
	assert.Equal(t, types.ActionHold, d.Action)
	assert.Equal(t, "insufficient_history", d.Reason)

	req.Memory.HistoricalBars = 8
	req.Indicators = types.Indicators{InsufficientData: true}
	d = decide(t, req)
	assert.Equal(t, types.ActionHold, d.Action)
	assert.Equal(t, "insufficient_technical_data", d.Reason)
}

func TestNoEdgeHolds(t *testing.T) {
	ind := types.Indicators{Trend: types.TrendNeutral, VolumeSpike: 0.8, MomentumPct: 0.02}
	d := decide(t, request(ind, flat(10000), types.RecentPerformance{}))
	assert.Equal(t, types.ActionHold, d.Action)
	assert.Equal(t, "no_clear_edge_trend_NEUTRAL_vol_0.8", d.Reason)
}

func TestDeterministic(t *testing.T) {
	req := request(strongBull(), long(6000, 30, 95, 100), types.RecentPerformance{Trades: 3, WinRate: 2.0 / 3.0})
	p := New(store.DefaultPolicy())
	first, _ := p.Decide(context.Background(), req)
	for i := 0; i < 10; i++ {
		again, _ := p.Decide(context.Background(), req)
		assert.Equal(t, first, again)
	}
}
