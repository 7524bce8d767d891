package chart

import (
	"sync"
	"time"

	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/types"
)

// Recorder keeps every chart event of a session and forwards each new one
// to the attached sinks. Reads may run concurrently with writes.
type Recorder struct {
	mu     sync.RWMutex
	events []types.ChartEvent
	sinks  []interfaces.ChartSink
}

func NewRecorder(sinks ...interfaces.ChartSink) *Recorder {
	return &Recorder{sinks: sinks}
}

// Attach adds a sink for events recorded from now on.
func (r *Recorder) Attach(s interfaces.ChartSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// InitContext records the context day as full candles.
func (r *Recorder) InitContext(bars []types.Bar) types.ChartEvent {
	candles := make([]types.Candle, len(bars))
	for i, b := range bars {
		candles[i] = types.Candle{Time: b.Time, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close}
	}
	return r.record(types.ChartEvent{Kind: types.ChartInitContext, Candles: candles})
}

// AppendLiveCandle records a traded bar. Only open and close are known to the
// engine, so high and low are derived from them.
func (r *Recorder) AppendLiveCandle(ts time.Time, open, close float64) types.ChartEvent {
	return r.record(types.ChartEvent{
		Kind:  types.ChartCandle,
		Time:  ts,
		Open:  open,
		Close: close,
		Candles: []types.Candle{{
			Time:  ts,
			Open:  open,
			High:  max(open, close),
			Low:   min(open, close),
			Close: close,
		}},
	})
}

func (r *Recorder) AddTradeMarker(ts time.Time, price float64, side string) types.ChartEvent {
	return r.record(types.ChartEvent{Kind: types.ChartMarker, Time: ts, Price: price, Side: side})
}

func (r *Recorder) record(ev types.ChartEvent) types.ChartEvent {
	r.mu.Lock()
	r.events = append(r.events, ev)
	sinks := r.sinks
	r.mu.Unlock()

	for _, s := range sinks {
		s.Publish(ev)
	}
	return ev
}

func (r *Recorder) Events() []types.ChartEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ChartEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

// EventsSince returns the events recorded after the first i.
func (r *Recorder) EventsSince(i int) []types.ChartEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 {
		i = 0
	}
	if i >= len(r.events) {
		return nil
	}
	out := make([]types.ChartEvent, len(r.events)-i)
	copy(out, r.events[i:])
	return out
}
