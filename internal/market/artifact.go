package market

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"llm-paper-trader/internal/types"

	"github.com/gocarina/gocsv"
)

type debugRow struct {
	Datetime string  `csv:"Datetime"`
	Open     float64 `csv:"Open"`
	Close    float64 `csv:"Close"`
	Volume   float64 `csv:"Volume"`
}

// DebugFileName builds <TICKER>_<interval>_<from>_to_<to>.csv with dots in
// the ticker replaced by underscores.
func DebugFileName(ticker, interval string, from, to time.Time) string {
	return fmt.Sprintf("%s_%s_%s_to_%s.csv",
		strings.ReplaceAll(ticker, ".", "_"), interval,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// ExportDebugCSV writes the prepared series as Datetime,Open,Close,Volume.
// The file is for audit only and never read back.
func ExportDebugCSV(path string, bars []types.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	rows := make([]debugRow, len(bars))
	for i, b := range bars {
		rows[i] = debugRow{
			Datetime: b.Time.Format("2006-01-02 15:04:05-07:00"),
			Open:     b.Open,
			Close:    b.Close,
			Volume:   b.Volume,
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}
