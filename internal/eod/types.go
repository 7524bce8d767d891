package eod

// summaryRow is one line of the session summary CSV. Money columns are
// preformatted so the file reads the same regardless of float noise.
type summaryRow struct {
	Symbol        string `csv:"symbol"`
	BuyQty        int    `csv:"buy_qty"`
	BuyAvg        string `csv:"buy_avg"`
	SellQty       int    `csv:"sell_qty"`
	SellAvg       string `csv:"sell_avg"`
	RealizedPnL   string `csv:"realized_pnl"`
	UnrealizedPnL string `csv:"unrealized_pnl"`
	GrossBuy      string `csv:"gross_buy_value"`
	GrossSell     string `csv:"gross_sell_value"`
	EndShares     int    `csv:"end_shares"`
	EndCash       string `csv:"end_cash"`
}

// aggRow accumulates the fills of one session.
type aggRow struct {
	BuyQty    int
	BuyValue  float64
	SellQty   int
	SellValue float64
}
