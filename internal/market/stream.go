package market

import (
	"errors"
	"sort"
	"time"

	"llm-paper-trader/internal/types"
)

// ErrDataUnavailable means no bars are left to build a session from.
var ErrDataUnavailable = errors.New("market data unavailable")

// Peek is the part of the next bar a decision may be based on.
type Peek struct {
	Index  int
	Time   time.Time
	Open   float64
	Volume float64
}

type Close struct {
	Index int
	Time  time.Time
	Close float64
}

// Stream replays a bar series through a two-phase cursor: the open and
// volume of the current bar are visible first, the close only once the
// caller commits and advances. The first calendar day is kept aside as
// context. Ordering between peek and commit is enforced by the caller.
type Stream struct {
	context []types.Bar
	trade   []types.Bar
	idx     int
}

// NewStream sorts bars by time and splits them into the context day and the
// trade span. With a single calendar day, that day is both.
func NewStream(bars []types.Bar) (*Stream, error) {
	if len(bars) == 0 {
		return nil, ErrDataUnavailable
	}
	sorted := make([]types.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	first := dayKey(sorted[0].Time)
	s := &Stream{}
	for _, b := range sorted {
		if dayKey(b.Time) == first {
			s.context = append(s.context, b)
		} else {
			s.trade = append(s.trade, b)
		}
	}
	if len(s.trade) == 0 {
		s.trade = sorted
	}
	return s, nil
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// PeekNextOpenVolume returns the open and volume at the current index
// without moving it. ok is false once the stream is exhausted.
func (s *Stream) PeekNextOpenVolume() (Peek, bool) {
	if s.idx >= len(s.trade) {
		return Peek{}, false
	}
	b := s.trade[s.idx]
	return Peek{Index: s.idx, Time: b.Time, Open: b.Open, Volume: b.Volume}, true
}

// CommitCloseAndAdvance reveals the close at the current index and moves to
// the next bar.
func (s *Stream) CommitCloseAndAdvance() (Close, bool) {
	if s.idx >= len(s.trade) {
		return Close{}, false
	}
	b := s.trade[s.idx]
	c := Close{Index: s.idx, Time: b.Time, Close: b.Close}
	s.idx++
	return c, true
}

// ContextBars returns the first trading day of the series.
func (s *Stream) ContextBars() []types.Bar {
	out := make([]types.Bar, len(s.context))
	copy(out, s.context)
	return out
}

// TradeBars returns the bars that will be streamed.
func (s *Stream) TradeBars() []types.Bar {
	out := make([]types.Bar, len(s.trade))
	copy(out, s.trade)
	return out
}

func (s *Stream) Index() int     { return s.idx }
func (s *Stream) Len() int       { return len(s.trade) }
func (s *Stream) Remaining() int { return len(s.trade) - s.idx }
func (s *Stream) Done() bool     { return s.idx >= len(s.trade) }

// BarDuration is the median spacing between consecutive bars of the same
// day, or zero when no two bars share a day.
func BarDuration(bars []types.Bar) time.Duration {
	var gaps []time.Duration
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].Time, bars[i].Time
		if cur.YearDay() != prev.YearDay() || cur.Year() != prev.Year() {
			continue
		}
		if d := cur.Sub(prev); d > 0 {
			gaps = append(gaps, d)
		}
	}
	if len(gaps) == 0 {
		return 0
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}
