package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
)

type fakeKite struct {
	instrumentCalls int
	gotToken        int
	gotInterval     string
	gotFrom, gotTo  time.Time
	data            []kiteconnect.HistoricalData
	err             error
}

func (f *fakeKite) GetInstrumentsByExchange(string) (kiteconnect.Instruments, error) {
	f.instrumentCalls++
	return kiteconnect.Instruments{
		{InstrumentToken: 408065, Tradingsymbol: "INFY"},
		{InstrumentToken: 738561, Tradingsymbol: "RELIANCE"},
	}, nil
}

func (f *fakeKite) GetHistoricalData(token int, interval string, from, to time.Time, continuous, oi bool) ([]kiteconnect.HistoricalData, error) {
	f.gotToken, f.gotInterval, f.gotFrom, f.gotTo = token, interval, from, to
	return f.data, f.err
}

func TestKiteSourceLoad(t *testing.T) {
	ts := time.Date(2025, 1, 7, 3, 45, 0, 0, time.UTC)
	fk := &fakeKite{data: []kiteconnect.HistoricalData{
		{Date: models.Time{Time: ts}, Open: 1500, High: 1502, Low: 1499, Close: 1501, Volume: 3200},
	}}
	src := newKiteSource(KiteParams{Exchange: "NSE", Interval: "5minute", LookbackDays: 10, Location: ist}, fk)
	src.now = func() time.Time { return time.Date(2025, 1, 20, 12, 0, 0, 0, ist) }

	bars, err := src.Load(context.Background(), "infy.ns")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 408065, fk.gotToken)
	assert.Equal(t, "5minute", fk.gotInterval)
	assert.Equal(t, time.Date(2025, 1, 10, 12, 0, 0, 0, ist), fk.gotFrom)
	assert.Equal(t, 9, bars[0].Time.Hour())
	assert.Equal(t, 15, bars[0].Time.Minute())
	assert.Equal(t, 3200.0, bars[0].Volume)

	_, err = src.Load(context.Background(), "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, 1, fk.instrumentCalls, "instrument list is cached")
	assert.Equal(t, 738561, fk.gotToken)
}

func TestKiteSourceUnknownSymbol(t *testing.T) {
	src := newKiteSource(KiteParams{}, &fakeKite{})
	_, err := src.Load(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestKiteSourceHistoricalError(t *testing.T) {
	boom := errors.New("token expired")
	src := newKiteSource(KiteParams{}, &fakeKite{err: boom})
	_, err := src.Load(context.Background(), "INFY")
	assert.ErrorIs(t, err, boom)
}
