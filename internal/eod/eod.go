package eod

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"llm-paper-trader/internal/types"

	"github.com/gocarina/gocsv"
)

type eodSummarizer struct {
	dir string
}

func (s *eodSummarizer) logDir() string {
	if s.dir != "" {
		return s.dir
	}
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

// csvPath names the summary after the session day and the symbol.
func (s *eodSummarizer) csvPath(day time.Time, symbol string) string {
	name := strings.ReplaceAll(symbol, ".", "_")
	return filepath.Join(s.logDir(), "eod", day.Format("2006-01-02")+"_"+name+".csv")
}

func money(v float64) string { return fmt.Sprintf("%.2f", v) }

// Summarize writes the session summary and returns its path. Sessions
// without fills produce no file and an empty path.
func (s *eodSummarizer) Summarize(symbol string, fills []types.Fill, final types.Snapshot) (string, error) {
	if len(fills) == 0 {
		return "", nil
	}

	var agg aggRow
	for _, f := range fills {
		value := float64(f.Qty) * f.Price
		switch f.Side {
		case types.ActionBuy:
			agg.BuyQty += f.Qty
			agg.BuyValue += value
		case types.ActionSell:
			agg.SellQty += f.Qty
			agg.SellValue += value
		}
	}
	var buyAvg, sellAvg float64
	if agg.BuyQty > 0 {
		buyAvg = agg.BuyValue / float64(agg.BuyQty)
	}
	if agg.SellQty > 0 {
		sellAvg = agg.SellValue / float64(agg.SellQty)
	}

	rows := []*summaryRow{
		{
			Symbol:        symbol,
			BuyQty:        agg.BuyQty,
			BuyAvg:        fmt.Sprintf("%.4f", buyAvg),
			SellQty:       agg.SellQty,
			SellAvg:       fmt.Sprintf("%.4f", sellAvg),
			RealizedPnL:   money(final.RealizedPnL),
			UnrealizedPnL: money(final.UnrealizedPnL),
			GrossBuy:      money(agg.BuyValue),
			GrossSell:     money(agg.SellValue),
			EndShares:     final.Shares,
			EndCash:       money(final.Cash),
		},
		{
			Symbol:      "TOTAL",
			RealizedPnL: money(final.TotalPnL),
			GrossBuy:    money(agg.BuyValue),
			GrossSell:   money(agg.SellValue),
			EndCash:     money(final.TotalValue),
		},
	}

	outPath := s.csvPath(fills[0].Time, symbol)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if err := gocsv.MarshalFile(&rows, out); err != nil {
		return "", fmt.Errorf("write eod summary: %w", err)
	}
	return outPath, nil
}
