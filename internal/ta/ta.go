package ta

import (
	"math"

	"llm-paper-trader/internal/types"

	"github.com/thrasher-corp/gct-ta/indicators"
)

const (
	// MinRecords is the number of closed bars needed before any indicator
	// is produced.
	MinRecords = 5
	// Window is the trailing record window the indicators look at.
	Window = 20

	emaPeriod = 20
	rsiPeriod = 14
)

// SMA is the mean of the last n values, NaN when there are fewer than n.
func SMA(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	return Mean(vals[len(vals)-n:])
}

func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// PctChange is (to-from)/from in percent, 0 when from is not positive.
func PctChange(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return (to - from) / from * 100
}

// Round rounds x to the given number of decimals.
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

// Trend classifies the ordering of open against the two short averages.
func Trend(open, sma5, sma10 float64) string {
	switch {
	case open > sma5 && sma5 > sma10:
		return types.TrendBullish
	case open < sma5 && sma5 < sma10:
		return types.TrendBearish
	default:
		return types.TrendNeutral
	}
}

// Compute derives the indicator snapshot for a bar whose open and volume are
// known, from the records that precede it. Only records with a committed
// close contribute prices; volumes come from the whole trailing window.
func Compute(records []types.BarRecord, open, volume float64) types.Indicators {
	recent := records
	if len(recent) > Window {
		recent = recent[len(recent)-Window:]
	}

	closes := make([]float64, 0, len(recent))
	volumes := make([]float64, 0, len(recent))
	for _, r := range recent {
		if r.Closed() {
			closes = append(closes, *r.Close)
		}
		volumes = append(volumes, r.Volume)
	}
	if len(closes) < MinRecords {
		return types.Indicators{InsufficientData: true}
	}

	sma5 := SMA(closes, 5)
	sma10 := sma5
	if len(closes) >= 10 {
		sma10 = SMA(closes, 10)
	}
	sma20 := sma10
	if len(closes) >= 20 {
		sma20 = SMA(closes, 20)
	}

	avgVolume := Mean(volumes)
	spike := 1.0
	if avgVolume > 0 {
		spike = volume / avgVolume
	}

	out := types.Indicators{
		SMA5:           Round(sma5, 2),
		SMA10:          Round(sma10, 2),
		SMA20:          Round(sma20, 2),
		MomentumPct:    Round(PctChange(closes[len(closes)-1], open), 2),
		PriceVsSMA5Pct: Round(PctChange(sma5, open), 2),
		VolumeSpike:    Round(spike, 2),
		AvgVolume:      math.Round(avgVolume),
		Trend:          Trend(open, sma5, sma10),
	}
	out.EMA20, out.RSI14 = supplementary(records)
	return out
}

// supplementary computes EMA20 and RSI14 over every closed record. They are
// context for external deciders only; zero when history is too short.
func supplementary(records []types.BarRecord) (ema, rsi float64) {
	closes := make([]float64, 0, len(records))
	for _, r := range records {
		if r.Closed() {
			closes = append(closes, *r.Close)
		}
	}
	if len(closes) >= emaPeriod {
		if series := indicators.EMA(closes, emaPeriod); len(series) > 0 {
			ema = Round(series[len(series)-1], 2)
		}
	}
	if len(closes) > rsiPeriod {
		if series := indicators.RSI(closes, rsiPeriod); len(series) > 0 {
			rsi = Round(series[len(series)-1], 2)
		}
	}
	if math.IsNaN(ema) || math.IsInf(ema, 0) {
		ema = 0
	}
	if math.IsNaN(rsi) || math.IsInf(rsi, 0) {
		rsi = 0
	}
	return ema, rsi
}
