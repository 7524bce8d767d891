package portfolio

import (
	"errors"
	"fmt"
	"time"

	"llm-paper-trader/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInvalidQty         = fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	ErrInvalidPrice       = fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	ErrInsufficientCash   = fmt.Errorf("%w: insufficient cash", ErrInvalidOrder)
	ErrInsufficientShares = fmt.Errorf("%w: insufficient shares", ErrInvalidOrder)
)

// Ledger keeps weighted-average-cost books for one long-only instrument.
// It is not safe for concurrent use; the engine serializes access.
type Ledger struct {
	cash        decimal.Decimal
	shares      int64
	avgCost     decimal.Decimal
	realizedPnL decimal.Decimal
	lastPrice   decimal.Decimal
	fills       []types.Fill
}

func NewLedger(startingCash float64) *Ledger {
	return &Ledger{cash: decimal.NewFromFloat(startingCash)}
}

// Buy fills qty shares at price. On error nothing changes.
func (l *Ledger) Buy(ts time.Time, qty int, price float64, reason string) (types.Fill, error) {
	if qty <= 0 {
		return types.Fill{}, ErrInvalidQty
	}
	if price <= 0 {
		return types.Fill{}, ErrInvalidPrice
	}
	px := decimal.NewFromFloat(price)
	q := decimal.NewFromInt(int64(qty))
	cost := px.Mul(q)
	if l.cash.LessThan(cost) {
		return types.Fill{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientCash, cost.StringFixed(2), l.cash.StringFixed(2))
	}

	held := decimal.NewFromInt(l.shares)
	l.avgCost = l.avgCost.Mul(held).Add(cost).Div(held.Add(q))
	l.shares += int64(qty)
	l.cash = l.cash.Sub(cost)
	return l.record(ts, types.ActionBuy, qty, price, reason), nil
}

// Sell fills qty shares at price and realizes (price-avg)*qty.
func (l *Ledger) Sell(ts time.Time, qty int, price float64, reason string) (types.Fill, error) {
	if qty <= 0 {
		return types.Fill{}, ErrInvalidQty
	}
	if price <= 0 {
		return types.Fill{}, ErrInvalidPrice
	}
	if int64(qty) > l.shares {
		return types.Fill{}, fmt.Errorf("%w: want %d, hold %d", ErrInsufficientShares, qty, l.shares)
	}
	px := decimal.NewFromFloat(price)
	q := decimal.NewFromInt(int64(qty))

	l.realizedPnL = l.realizedPnL.Add(px.Sub(l.avgCost).Mul(q))
	l.shares -= int64(qty)
	l.cash = l.cash.Add(px.Mul(q))
	if l.shares == 0 {
		l.avgCost = decimal.Zero
	}
	return l.record(ts, types.ActionSell, qty, price, reason), nil
}

func (l *Ledger) record(ts time.Time, side string, qty int, price float64, reason string) types.Fill {
	f := types.Fill{
		ID:     uuid.NewString(),
		Time:   ts,
		Side:   side,
		Qty:    qty,
		Price:  price,
		Reason: reason,
	}
	l.fills = append(l.fills, f)
	return f
}

// Mark sets the last traded price used for unrealized pnl.
func (l *Ledger) Mark(price float64) {
	l.lastPrice = decimal.NewFromFloat(price)
}

func (l *Ledger) Shares() int { return int(l.shares) }

// AvgCost is the unrounded weighted-average cost.
func (l *Ledger) AvgCost() float64 { return l.avgCost.InexactFloat64() }

func (l *Ledger) RealizedPnL() decimal.Decimal { return l.realizedPnL }

func (l *Ledger) Cash() decimal.Decimal { return l.cash }

func (l *Ledger) unrealized() decimal.Decimal {
	if l.shares <= 0 {
		return decimal.Zero
	}
	return l.lastPrice.Sub(l.avgCost).Mul(decimal.NewFromInt(l.shares))
}

// Snapshot is the rounded read-only view other components observe.
func (l *Ledger) Snapshot() types.Snapshot {
	unrealized := l.unrealized()
	value := l.cash.Add(l.lastPrice.Mul(decimal.NewFromInt(l.shares)))

	s := types.Snapshot{
		Cash:          l.cash.Round(2).InexactFloat64(),
		Shares:        int(l.shares),
		AvgCost:       l.avgCost.Round(4).InexactFloat64(),
		LastPrice:     l.lastPrice.Round(4).InexactFloat64(),
		RealizedPnL:   l.realizedPnL.Round(2).InexactFloat64(),
		UnrealizedPnL: unrealized.Round(2).InexactFloat64(),
		TotalPnL:      l.realizedPnL.Add(unrealized).Round(2).InexactFloat64(),
		TotalValue:    value.Round(2).InexactFloat64(),
	}
	if value.IsPositive() {
		used := decimal.NewFromInt(1).Sub(l.cash.Div(value)).Mul(decimal.NewFromInt(100))
		s.CashUtilizationPct = used.Round(2).InexactFloat64()
	}
	return s
}

// Fills returns a copy of the trade log.
func (l *Ledger) Fills() []types.Fill {
	out := make([]types.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}
