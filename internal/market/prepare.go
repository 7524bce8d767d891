package market

import (
	"context"
	"fmt"
	"time"

	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/types"
)

// Prepare loads bars for ticker, moves them into loc and drops everything
// outside the session hours. An empty result is ErrDataUnavailable.
func Prepare(ctx context.Context, src interfaces.BarSource, ticker string, loc *time.Location, start, end time.Duration) ([]types.Bar, error) {
	raw, err := src.Load(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: source returned no bars for %s", ErrDataUnavailable, ticker)
	}
	bars := FilterSessionHours(ToLocation(raw, loc), loc, start, end)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s inside session hours", ErrDataUnavailable, ticker)
	}
	logger.Info(ctx, "Market data prepared", "ticker", ticker, "raw", len(raw), "kept", len(bars))
	return bars, nil
}

// ToLocation converts every bar timestamp into loc.
func ToLocation(bars []types.Bar, loc *time.Location) []types.Bar {
	out := make([]types.Bar, len(bars))
	for i, b := range bars {
		b.Time = b.Time.In(loc)
		out[i] = b
	}
	return out
}

// FilterSessionHours keeps bars whose wall-clock time in loc falls inside
// [start, end], both given as offsets from midnight. The bounds are inclusive.
func FilterSessionHours(bars []types.Bar, loc *time.Location, start, end time.Duration) []types.Bar {
	out := make([]types.Bar, 0, len(bars))
	for _, b := range bars {
		t := b.Time.In(loc)
		clock := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
		if clock >= start && clock <= end {
			out = append(out, b)
		}
	}
	return out
}

// SliceRecentDays keeps bars with from <= time <= to.
func SliceRecentDays(bars []types.Bar, from, to time.Time) []types.Bar {
	out := make([]types.Bar, 0, len(bars))
	for _, b := range bars {
		if !b.Time.Before(from) && !b.Time.After(to) {
			out = append(out, b)
		}
	}
	return out
}

// LookbackWindow returns the [now-days, now-1d] range used to slice freshly
// downloaded data.
func LookbackWindow(now time.Time, days int) (from, to time.Time) {
	return now.AddDate(0, 0, -days), now.AddDate(0, 0, -1)
}
