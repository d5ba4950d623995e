package report

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/storage/state"
	"go.uber.org/zap"
)

type fakeState struct {
	metrics state.EquityMetrics
	status  domain.StatusSnapshot
	err     error
}

func (f *fakeState) ComputeEquityMetrics() (state.EquityMetrics, error) { return f.metrics, f.err }

func (f *fakeState) LoadStatus(mode domain.Mode) domain.StatusSnapshot {
	st := f.status
	if st.Mode == "" {
		st.Mode = mode
	}
	return st
}

type fakeQuotes struct {
	closes map[string][]string
}

func (f *fakeQuotes) Fetch(_ context.Context, symbol string, _ domain.Timeframe, _ int) ([]domain.Bar, error) {
	closes, ok := f.closes[symbol]
	if !ok {
		return nil, errors.Wrap(domain.ErrDataUnavailable, symbol)
	}
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Close: decimal.RequireFromString(c)}
	}
	return bars, nil
}

type sent struct {
	key, msg string
	interval time.Duration
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeNotifier) Notify(_ context.Context, key, msg string, minInterval time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{key, msg, minInterval})
	return true
}

func TestBuildReports(t *testing.T) {
	date := time.Date(2024, 5, 5, 18, 0, 0, 0, time.UTC)
	m := state.EquityMetrics{Equity: 10250.456, WTD: 2.5, MaxDrawdown: -5}

	daily := BuildDaily(date, []Quote{{Symbol: "BTC/USDT", Price: 65000, ChangePct: -1.234}}, m)
	assert.Equal(t, "[Daily Report 2024-05-05] BTC/USDT 65000.00 (-1.23%), Equity 10250.46, WTD +2.50%", daily)

	weekly := BuildWeekly(date, m, "breakout_atr")
	assert.Equal(t, "[Weekly Report 2024-05-05] PnL +2.50% | MaxDD -5.00% | TopStrat breakout_atr", weekly)
}

func TestReporter(t *testing.T) {
	st := &fakeState{
		metrics: state.EquityMetrics{Equity: 10000, WTD: 1.5, MaxDrawdown: -2},
		status:  domain.StatusSnapshot{Strategy: "mean_reversion"},
	}
	quotes := &fakeQuotes{closes: map[string][]string{"BTC/USDT": {"100", "110"}}}
	n := &fakeNotifier{}

	r := NewReporter(st, quotes, n, []string{"BTC/USDT", "ETH/USDT"}, "ensemble", domain.ModePaper, nil, zap.NewNop())
	r.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }

	r.SendDaily(context.Background())
	r.SendWeekly(context.Background())

	require.Len(t, n.sent, 2)
	assert.Equal(t, KeyDaily, n.sent[0].key)
	assert.Equal(t, time.Minute, n.sent[0].interval)
	assert.Equal(t, "[Daily Report 2024-05-01] BTC/USDT 110.00 (+10.00%), Equity 10000.00, WTD +1.50%", n.sent[0].msg)
	assert.Equal(t, KeyWeekly, n.sent[1].key)
	assert.Contains(t, n.sent[1].msg, "TopStrat mean_reversion")

	st.status.Strategy = ""
	msg, err := r.Weekly(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg, "TopStrat ensemble")
}

func TestReporter_MetricsFailureSkipsSend(t *testing.T) {
	n := &fakeNotifier{}
	r := NewReporter(&fakeState{err: errors.New("disk")}, nil, n, nil, "momentum_rsi", domain.ModePaper, nil, nil)

	r.SendDaily(context.Background())
	assert.Empty(t, n.sent)
}

func TestNextDaily(t *testing.T) {
	at := 8 * time.Hour

	before := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), NextDaily(before, at, time.UTC))

	exactly := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC), NextDaily(exactly, at, time.UTC))

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	next := NextDaily(time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC), at, berlin)
	assert.Equal(t, time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC), next.UTC())
}

func TestNextWeekly(t *testing.T) {
	at := 18 * time.Hour

	wednesday := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 5, 18, 0, 0, 0, time.UTC), NextWeekly(wednesday, at, time.UTC))

	sundayMorning := time.Date(2024, 5, 5, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 5, 18, 0, 0, 0, time.UTC), NextWeekly(sundayMorning, at, time.UTC))

	sundayEvening := time.Date(2024, 5, 5, 19, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 12, 18, 0, 0, 0, time.UTC), NextWeekly(sundayEvening, at, time.UTC))
}

type countingSender struct {
	mu            sync.Mutex
	daily, weekly int
}

func (c *countingSender) SendDaily(context.Context) {
	c.mu.Lock()
	c.daily++
	c.mu.Unlock()
}

func (c *countingSender) SendWeekly(context.Context) {
	c.mu.Lock()
	c.weekly++
	c.mu.Unlock()
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	s := NewScheduler(&countingSender{}, 8*time.Hour, 18*time.Hour, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_Fires(t *testing.T) {
	c := &countingSender{}
	// 2024-05-05 is a Sunday; both reports are due at 18:00.
	fire := time.Date(2024, 5, 5, 18, 0, 0, 0, time.UTC)
	s := NewScheduler(c, 18*time.Hour, 18*time.Hour, time.UTC, nil)

	var calls int
	var mu sync.Mutex
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return fire.Add(-10 * time.Millisecond)
		}
		return fire.Add(time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 1, c.daily)
	assert.Equal(t, 1, c.weekly)
}
