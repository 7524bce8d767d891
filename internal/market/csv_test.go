package market

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"llm-paper-trader/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestCSVSourceLoad(t *testing.T) {
	path := writeFile(t, "bars.csv", `Datetime,Open,High,Low,Close,Volume
2025-01-07 09:15:00+05:30,100,101.5,99.5,101,1200
2025-01-07 09:20:00,101,102,100.5,101.8,900.0
`)
	bars, err := NewCSVSource(path, ist).Load(context.Background(), "INFY.NS")
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, time.Date(2025, 1, 7, 9, 15, 0, 0, ist).Unix(), bars[0].Time.Unix())
	assert.Equal(t, 101.5, bars[0].High)
	assert.Equal(t, 1200.0, bars[0].Volume)
	assert.Equal(t, time.Date(2025, 1, 7, 9, 20, 0, 0, ist).Unix(), bars[1].Time.Unix())
}

func TestCSVSourceWithoutHighLow(t *testing.T) {
	path := writeFile(t, "debug.csv", `Datetime,Open,Close,Volume
2025-01-07T09:15:00+05:30,100,98,10
`)
	bars, err := NewCSVSource(path, ist).Load(context.Background(), "X")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 100.0, bars[0].High)
	assert.Equal(t, 98.0, bars[0].Low)
}

func TestCSVSourceBadTimestamp(t *testing.T) {
	path := writeFile(t, "bad.csv", "Datetime,Open,Close,Volume\nyesterday,1,1,1\n")
	_, err := NewCSVSource(path, ist).Load(context.Background(), "X")
	assert.ErrorContains(t, err, "row 2")
}

func TestCSVSourceMissingFile(t *testing.T) {
	_, err := NewCSVSource(filepath.Join(t.TempDir(), "nope.csv"), ist).Load(context.Background(), "X")
	assert.Error(t, err)
}

func TestDebugFileName(t *testing.T) {
	from := time.Date(2025, 1, 6, 0, 0, 0, 0, ist)
	to := time.Date(2025, 1, 15, 0, 0, 0, 0, ist)
	assert.Equal(t, "RELIANCE_NS_5m_2025-01-06_to_2025-01-15.csv", DebugFileName("RELIANCE.NS", "5m", from, to))
}

func TestExportDebugCSVRoundTripsThroughCSVSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "x.csv")
	in := []types.Bar{bar(7, 9, 15, 100, 101, 10), bar(7, 9, 20, 101, 99.5, 20)}
	require.NoError(t, ExportDebugCSV(path, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Datetime,Open,Close,Volume")
	assert.Contains(t, string(raw), "2025-01-07 09:15:00+05:30,100,101,10")

	out, err := NewCSVSource(path, ist).Load(context.Background(), "X")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 99.5, out[1].Close)
	assert.True(t, in[1].Time.Equal(out[1].Time))
}
