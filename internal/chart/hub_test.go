package chart

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"llm-paper-trader/internal/types"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) types.ChartEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev types.ChartEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestHubSendsHistoryThenLiveEvents(t *testing.T) {
	rec := NewRecorder()
	rec.InitContext([]types.Bar{{Time: ts, Open: 1, High: 1, Low: 1, Close: 1}})

	hub := NewHub(rec.Events)
	rec.Attach(hub)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv.URL)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	first := readEvent(t, conn)
	assert.Equal(t, types.ChartInitContext, first.Kind)

	rec.AppendLiveCandle(ts.Add(time.Minute), 100, 101)
	live := readEvent(t, conn)
	assert.Equal(t, types.ChartCandle, live.Kind)
	assert.Equal(t, 101.0, live.Close)
}

func TestHubDropsClosedClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv.URL)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	hub.Publish(types.ChartEvent{Kind: types.ChartMarker})
}

func TestHubReplaysLongHistoryInFull(t *testing.T) {
	rec := NewRecorder()
	rec.InitContext([]types.Bar{{Time: ts, Open: 1, High: 1, Low: 1, Close: 1}})
	for i := 1; i < 300; i++ {
		rec.AppendLiveCandle(ts.Add(time.Duration(i)*time.Minute), 100, float64(100+i))
	}
	require.Len(t, rec.Events(), 300)

	hub := NewHub(rec.Events)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv.URL)
	assert.Equal(t, types.ChartInitContext, readEvent(t, conn).Kind)
	var last types.ChartEvent
	for i := 1; i < 300; i++ {
		last = readEvent(t, conn)
		require.Equal(t, types.ChartCandle, last.Kind)
	}
	assert.Equal(t, 399.0, last.Close)
}
