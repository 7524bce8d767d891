package market

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/types"

	"github.com/gocarina/gocsv"
)

// csvRow is one line of a prepared bar file. High and Low are optional.
type csvRow struct {
	Datetime string  `csv:"Datetime"`
	Open     float64 `csv:"Open"`
	High     float64 `csv:"High"`
	Low      float64 `csv:"Low"`
	Close    float64 `csv:"Close"`
	Volume   float64 `csv:"Volume"`
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// CSVSource reads bars from a file with a Datetime,Open,[High,Low,]Close,Volume
// header. Naive timestamps are taken to be in Location.
type CSVSource struct {
	Path     string
	Location *time.Location
}

var _ interfaces.BarSource = (*CSVSource)(nil)

func NewCSVSource(path string, loc *time.Location) *CSVSource {
	return &CSVSource{Path: path, Location: loc}
}

func (s *CSVSource) Load(ctx context.Context, ticker string) ([]types.Bar, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	var rows []csvRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}

	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	bars := make([]types.Bar, 0, len(rows))
	for i, r := range rows {
		ts, err := parseTime(r.Datetime, loc)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		b := types.Bar{Time: ts, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}
		if b.High == 0 {
			b.High = max(b.Open, b.Close)
		}
		if b.Low == 0 {
			b.Low = min(b.Open, b.Close)
		}
		bars = append(bars, b)
	}
	logger.Debug(ctx, "Bars loaded from CSV", "ticker", ticker, "path", s.Path, "count", len(bars))
	return bars, nil
}

func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}
