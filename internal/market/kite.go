package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/types"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// kiteClient is the part of the Kite Connect client the source uses.
type kiteClient interface {
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
}

type KiteParams struct {
	APIKey       string
	AccessToken  string
	Exchange     string
	Interval     string
	LookbackDays int
	Location     *time.Location
}

// KiteSource downloads historical bars from Zerodha Kite Connect.
type KiteSource struct {
	p   KiteParams
	kc  kiteClient
	now func() time.Time

	mu     sync.RWMutex
	tokens map[string]int
}

var _ interfaces.BarSource = (*KiteSource)(nil)

func NewKiteSource(p KiteParams) *KiteSource {
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)
	return newKiteSource(p, kc)
}

func newKiteSource(p KiteParams, kc kiteClient) *KiteSource {
	if p.Exchange == "" {
		p.Exchange = "NSE"
	}
	if p.Interval == "" {
		p.Interval = "minute"
	}
	if p.LookbackDays <= 0 {
		p.LookbackDays = 10
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	return &KiteSource{p: p, kc: kc, now: time.Now, tokens: map[string]int{}}
}

// Load fetches the lookback window for ticker. A trailing ".NS" or ".BO"
// suffix is dropped before the instrument lookup.
func (k *KiteSource) Load(ctx context.Context, ticker string) ([]types.Bar, error) {
	symbol := tradingSymbol(ticker)
	token, err := k.instrumentToken(ctx, symbol)
	if err != nil {
		return nil, err
	}

	from, to := LookbackWindow(k.now().In(k.p.Location), k.p.LookbackDays)
	logger.Debug(ctx, "Fetching historical data", "symbol", symbol, "token", token, "interval", k.p.Interval, "from", from, "to", to)

	data, err := k.kc.GetHistoricalData(token, k.p.Interval, from, to, false, false)
	if err != nil {
		return nil, fmt.Errorf("kite historical data for %s: %w", symbol, err)
	}

	bars := make([]types.Bar, 0, len(data))
	for _, d := range data {
		bars = append(bars, types.Bar{
			Time:   d.Date.Time.In(k.p.Location),
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: float64(d.Volume),
		})
	}
	logger.Info(ctx, "Historical data fetched", "symbol", symbol, "bars", len(bars))
	return bars, nil
}

func (k *KiteSource) instrumentToken(ctx context.Context, symbol string) (int, error) {
	k.mu.RLock()
	token, ok := k.tokens[symbol]
	k.mu.RUnlock()
	if ok {
		return token, nil
	}

	instruments, err := k.kc.GetInstrumentsByExchange(k.p.Exchange)
	if err != nil {
		return 0, fmt.Errorf("kite instruments for %s: %w", k.p.Exchange, err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, ins := range instruments {
		k.tokens[ins.Tradingsymbol] = ins.InstrumentToken
	}
	token, ok = k.tokens[symbol]
	if !ok {
		logger.Warn(ctx, "Instrument not found", "symbol", symbol, "exchange", k.p.Exchange, "instruments", len(instruments))
		return 0, fmt.Errorf("%w: no instrument %s on %s", ErrDataUnavailable, symbol, k.p.Exchange)
	}
	return token, nil
}

func tradingSymbol(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	for _, suffix := range []string{".NS", ".BO"} {
		t = strings.TrimSuffix(t, suffix)
	}
	return t
}
