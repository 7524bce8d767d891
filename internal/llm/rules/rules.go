package rules

import (
	"context"
	"fmt"
	"math"

	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/memory"
	"llm-paper-trader/internal/store"
	"llm-paper-trader/internal/types"
)

const Source = "rules"

// sizing tiers keyed by recent win rate
type tier struct {
	perTrade   float64
	deployment float64
}

func tierFor(winRate float64) tier {
	switch {
	case winRate > 0.6:
		return tier{perTrade: 0.5, deployment: 0.9}
	case winRate > 0.4:
		return tier{perTrade: 0.35, deployment: 0.7}
	default:
		return tier{perTrade: 0.25, deployment: 0.5}
	}
}

// Policy is the deterministic fallback decider. It sizes entries by the
// recent win rate and exits on trend reversal, momentum loss or a stop.
type Policy struct {
	cfg store.PolicyConfig
}

var _ interfaces.Decider = (*Policy)(nil)

func New(cfg store.PolicyConfig) *Policy {
	return &Policy{cfg: cfg}
}

func (p *Policy) Decide(_ context.Context, req types.DecisionRequest) (types.Decision, error) {
	d := p.decide(req)
	d.Source = Source
	if d.Action != types.ActionHold && d.Qty <= 0 {
		d = types.Hold(d.Reason + "_qty_0")
		d.Source = Source
	}
	return d, nil
}

func (p *Policy) decide(req types.DecisionRequest) types.Decision {
	if req.Memory.HistoricalBars < p.cfg.MinHistory {
		return types.Hold("insufficient_history")
	}
	ind := req.Indicators
	if ind.InsufficientData {
		return types.Hold("insufficient_technical_data")
	}
	open := req.Open
	if open <= 0 {
		return types.Hold("invalid_open")
	}

	winRate := memory.DefaultWinRate
	if req.Memory.Recent.Trades > 0 {
		winRate = req.Memory.Recent.WinRate
	}
	t := tierFor(winRate)

	snap := req.Portfolio
	shares := snap.Shares
	unrealized := snap.UnrealizedPnL
	totalValue := snap.Cash + float64(shares)*open

	strong := ind.Trend == types.TrendBullish &&
		ind.VolumeSpike > p.cfg.StrongVolumeSpike &&
		ind.MomentumPct > p.cfg.StrongMomentumPct &&
		ind.PriceVsSMA5Pct > p.cfg.StrongPriceVsSMA5
	medium := ind.Trend != types.TrendBearish &&
		ind.VolumeSpike > p.cfg.MediumVolumeSpike &&
		ind.MomentumPct > 0
	exit := ind.Trend == types.TrendBearish ||
		ind.MomentumPct < p.cfg.ExitMomentumPct ||
		(shares > 0 && unrealized < -p.cfg.StopLossFrac*snap.AvgCost*float64(shares))

	maxBuyCash := math.Min(snap.Cash*t.perTrade, math.Max(0, totalValue*t.deployment-float64(shares)*open))
	maxShares := int(math.Floor(maxBuyCash / open))

	switch {
	case shares == 0 && strong:
		return buy(maxShares, fmt.Sprintf("strong_buy_signal_wr_%.2f", winRate))
	case shares == 0 && medium:
		return buy(maxShares/2, fmt.Sprintf("medium_buy_signal_wr_%.2f", winRate))
	case shares > 0 && unrealized > 0 && strong:
		return buy(min(maxShares, max(1, shares/3)), fmt.Sprintf("scale_into_winner_pnl_%.2f", unrealized))
	case shares > 0 && exit:
		return sell(shares, fmt.Sprintf("exit_signal_pnl_%.2f", unrealized))
	case shares > 0 && unrealized > p.cfg.TakeProfitFrac*snap.AvgCost*float64(shares):
		return sell(max(1, shares/3), fmt.Sprintf("partial_profit_pnl_%.2f", unrealized))
	}
	return types.Hold(fmt.Sprintf("no_clear_edge_trend_%s_vol_%.1f", ind.Trend, ind.VolumeSpike))
}

func buy(qty int, reason string) types.Decision {
	return types.Decision{Action: types.ActionBuy, Qty: qty, Reason: reason, Confidence: 1}
}

func sell(qty int, reason string) types.Decision {
	return types.Decision{Action: types.ActionSell, Qty: qty, Reason: reason, Confidence: 1}
}
