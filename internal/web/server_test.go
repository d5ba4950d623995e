package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/events"
	"github.com/vadiminshakov/tradeit/internal/storage/state"
)

func newTestServer(t *testing.T) (*Server, *state.Store, *events.StatusBroadcaster) {
	t.Helper()
	store, err := state.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	b := events.NewStatusBroadcaster(8)
	settings := map[string]any{"symbols": []string{"BTCUSDT"}, "binance_api_key": "***"}
	return NewServer(":0", store, settings, domain.ModePaper, b, nil, nil), store, b
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Config(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/config")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "***", body["binance_api_key"])
}

func TestServer_StatusDefaults(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status domain.StatusSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, domain.ModePaper, status.Mode)
	assert.True(t, status.Equity.IsZero())
	assert.False(t, status.Paused)
	assert.Empty(t, status.OpenPositions)
}

func TestServer_Metrics(t *testing.T) {
	s, store, _ := newTestServer(t)

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sharpe":0,"max_drawdown":0}`, rec.Body.String())

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveEquity([]domain.EquityPoint{
		{Time: start, Equity: decimal.NewFromInt(100)},
		{Time: start.Add(time.Hour), Equity: decimal.NewFromInt(120)},
		{Time: start.Add(2 * time.Hour), Equity: decimal.NewFromInt(90)},
	}))

	rec = get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, -25.0, body["max_drawdown"], 1e-9)
}

func TestServer_Trades(t *testing.T) {
	s, store, _ := newTestServer(t)

	rec := get(t, s.Handler(), "/trades")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendTrade(domain.FillRecord{
			Symbol: "BTCUSDT",
			Side:   domain.SideBuy,
			Amount: decimal.NewFromInt(int64(i + 1)),
			Price:  decimal.NewFromInt(100),
			Mode:   domain.ModePaper,
		}))
	}

	rec = get(t, s.Handler(), "/trades?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var trades []state.TradeLine
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 2)
	assert.True(t, trades[1].Amount.Equal(decimal.NewFromInt(3)))

	rec = get(t, s.Handler(), "/trades?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Index(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/status/stream")

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/nope").Code)
}

func TestServer_PromDisabled(t *testing.T) {
	s, _, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/metrics/prom").Code)
}

func readSSEData(t *testing.T, r *bufio.Reader) events.StatusEvent {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var e events.StatusEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(data)), &e))
			return e
		}
	}
}

func TestServer_StatusStream(t *testing.T) {
	s, _, b := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	b.Publish(events.StatusEvent{Mode: "paper", Equity: "10000"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/status/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	first := readSSEData(t, reader)
	assert.Equal(t, "10000", first.Equity)

	b.Publish(events.StatusEvent{Mode: "paper", Equity: "10100", Paused: true})
	second := readSSEData(t, reader)
	assert.Equal(t, "10100", second.Equity)
	assert.True(t, second.Paused)
}

func TestServer_StatusWebSocket(t *testing.T) {
	s, _, b := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	b.Publish(events.StatusEvent{Mode: "paper", Equity: "10000"})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/status/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var e events.StatusEvent
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "10000", e.Equity)

	b.Publish(events.StatusEvent{Mode: "paper", Equity: "9900", Strategy: "breakout_atr"})
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "9900", e.Equity)
	assert.Equal(t, "breakout_atr", e.Strategy)
}
