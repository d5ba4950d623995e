package bot

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
	"github.com/vadiminshakov/tradeit/internal/events"
	"github.com/vadiminshakov/tradeit/internal/execution"
	"github.com/vadiminshakov/tradeit/internal/ml"
	"github.com/vadiminshakov/tradeit/internal/risk"
	"github.com/vadiminshakov/tradeit/internal/storage/journal"
	"github.com/vadiminshakov/tradeit/internal/storage/state"
	"github.com/vadiminshakov/tradeit/internal/strategy"
	"github.com/vadiminshakov/tradeit/internal/wallet"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// flatBars are n hourly bars closing at price with a constant 2-point range.
func flatBars(n int, price float64) []domain.Bar {
	start := testNow.Add(-time.Duration(n+1) * time.Hour)
	bars := make([]domain.Bar, n)
	for i := range bars {
		open := start.Add(time.Duration(i) * time.Hour)
		bars[i] = domain.Bar{
			OpenTime:  open,
			CloseTime: open.Add(time.Hour - time.Millisecond),
			Open:      decimal.NewFromFloat(price),
			High:      decimal.NewFromFloat(price + 1),
			Low:       decimal.NewFromFloat(price - 1),
			Close:     decimal.NewFromFloat(price),
			Volume:    decimal.NewFromInt(10),
		}
	}
	return bars
}

// wavyBars oscillate so every indicator is defined after warmup.
func wavyBars(n int) []domain.Bar {
	bars := flatBars(n, 100)
	for i := range bars {
		c := decimal.NewFromInt(int64(100 + i%7))
		bars[i].Open = c
		bars[i].Close = c
		bars[i].High = c.Add(decimal.NewFromInt(1))
		bars[i].Low = c.Sub(decimal.NewFromInt(1))
	}
	return bars
}

type fakeSource struct {
	mu    sync.Mutex
	bars  map[string][]domain.Bar
	err   map[string]error
	calls int
}

func (s *fakeSource) Fetch(_ context.Context, symbol string, _ domain.Timeframe, _ int) ([]domain.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.err[symbol]; err != nil {
		return nil, err
	}
	return s.bars[symbol], nil
}

type fixedStrategy struct {
	entry, exit bool
	calls       int
}

func (s *fixedStrategy) Name() string { return "fixed" }

func (s *fixedStrategy) GenerateSignals(bars []domain.Bar) (strategy.Signals, error) {
	s.calls++
	sig := strategy.Signals{Entries: make([]bool, len(bars)), Exits: make([]bool, len(bars))}
	if len(bars) > 0 {
		sig.Entries[len(bars)-1] = s.entry
		sig.Exits[len(bars)-1] = s.exit
	}
	return sig, nil
}

type sentMessage struct {
	key, msg string
}

type recordingNotifier struct {
	sent []sentMessage
}

func (n *recordingNotifier) Notify(_ context.Context, key, msg string, _ time.Duration) bool {
	n.sent = append(n.sent, sentMessage{key: key, msg: msg})
	return true
}

func (n *recordingNotifier) keys() []string {
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.key)
	}
	return out
}

type memJournal struct {
	states []journal.BotState
}

func (j *memJournal) SaveState(st journal.BotState) error {
	j.states = append(j.states, st)
	return nil
}

type harness struct {
	loop     *Loop
	wallet   *wallet.PaperWallet
	source   *fakeSource
	strategy *fixedStrategy
	notifier *recordingNotifier
	store    *state.Store
	journal  *memJournal
	events   *events.StatusBroadcaster
}

type harnessOption func(*Settings, *Deps)

func newHarness(t *testing.T, balances map[string]decimal.Decimal, opts ...harnessOption) *harness {
	t.Helper()
	now := func() time.Time { return testNow }

	w, err := wallet.New(balances, nil, wallet.WithFeeBps(0), wallet.WithClock(now))
	require.NoError(t, err)
	router, err := execution.NewRouter(domain.ModePaper, w, nil, nil, execution.WithClock(now))
	require.NoError(t, err)
	store, err := state.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	h := &harness{
		wallet:   w,
		source:   &fakeSource{bars: map[string][]domain.Bar{}, err: map[string]error{}},
		strategy: &fixedStrategy{},
		notifier: &recordingNotifier{},
		store:    store,
		journal:  &memJournal{},
		events:   events.NewStatusBroadcaster(4),
	}

	settings := Settings{
		Symbols:      []string{"BTC/USDT", "ETH/USDT"},
		Timeframe:    domain.Timeframe("1h"),
		RiskPerTrade: d("0.01"),
		StopATRMult:  d("2"),
	}
	deps := Deps{
		Source:   h.source,
		Strategy: h.strategy,
		Router:   router,
		Wallet:   w,
		Limiter: risk.NewLimiter(domain.RiskLimits{
			MaxConcurrent: 2,
			MaxExposure:   d("0.5"),
			MaxDailyLoss:  d("0.05"),
		}, now),
		Notifier:    h.notifier,
		Store:       store,
		Journal:     h.journal,
		Broadcaster: h.events,
		Now:         now,
	}
	for _, opt := range opts {
		opt(&settings, &deps)
	}

	h.loop, err = New(settings, deps)
	require.NoError(t, err)
	return h
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Settings{}, Deps{})
	assert.Error(t, err)

	_, err = New(Settings{Symbols: []string{"BTCUSDT"}}, Deps{
		Source: &fakeSource{}, Strategy: &fixedStrategy{}, Router: &execution.Router{},
		Wallet: &wallet.PaperWallet{}, Limiter: risk.NewLimiter(domain.RiskLimits{}, nil),
		Notifier: &recordingNotifier{}, Store: &state.Store{},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSymbol)
}

func TestNew_PollIntervalFloor(t *testing.T) {
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000")}, func(s *Settings, _ *Deps) {
		s.PollInterval = time.Second
	})
	assert.Equal(t, minPollInterval, h.loop.settings.PollInterval)
	assert.Equal(t, defaultHistoryLimit, h.loop.settings.HistoryLimit)
}

func TestTick_EntryWhileFlat(t *testing.T) {
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000")})
	h.source.bars["BTC/USDT"] = flatBars(30, 100)
	h.strategy.entry = true

	h.loop.Tick(context.Background())

	positions := h.loop.Positions()
	require.Contains(t, positions, "BTC/USDT")
	pos := positions["BTC/USDT"]
	assert.True(t, pos.Quantity.IsPositive())
	assert.True(t, pos.Quantity.Equal(h.wallet.Balance("BTC")), "quantity is the filled amount")
	assert.True(t, pos.EntryPrice.Equal(d("100")))
	assert.Contains(t, h.notifier.keys(), keyTradeOpen)

	trades, err := h.store.LoadTrades(0)
	require.NoError(t, err)
	assert.Empty(t, trades, "ledger writes belong to the fill callback")

	status := h.store.LoadStatus(domain.ModePaper)
	require.Len(t, status.OpenPositions, 1)
	assert.Equal(t, "BTC/USDT", status.OpenPositions[0].Symbol)
	assert.Equal(t, "fixed", status.Strategy)
	assert.False(t, status.Paused)

	require.NotEmpty(t, h.journal.states)
	last := h.journal.states[len(h.journal.states)-1]
	assert.Contains(t, last.Positions, "BTC/USDT")
	assert.True(t, flatBars(30, 100)[29].OpenTime.Equal(last.LastProcessed["BTC/USDT"]))

	e, ok := h.events.Last()
	require.True(t, ok)
	assert.Equal(t, 1, e.OpenPositions)
	assert.Equal(t, "100", e.Prices["BTC"])
}

func TestTick_SameBarIsNotReprocessed(t *testing.T) {
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000")})
	h.source.bars["BTC/USDT"] = flatBars(30, 100)

	h.loop.Tick(context.Background())
	h.loop.Tick(context.Background())
	assert.Equal(t, 1, h.strategy.calls)

	next := flatBars(30, 100)
	next[len(next)-1].OpenTime = testNow.Add(-time.Minute)
	h.source.bars["BTC/USDT"] = next
	h.loop.Tick(context.Background())
	assert.Equal(t, 2, h.strategy.calls)
}

func TestTick_PauseBlocksEntriesButAllowsExits(t *testing.T) {
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000"), "ETH": d("5")})
	h.source.bars["BTC/USDT"] = flatBars(30, 100)
	h.source.bars["ETH/USDT"] = flatBars(30, 100)
	h.strategy.entry = true
	h.strategy.exit = true

	h.loop.Restore(&journal.BotState{
		Paused: true,
		Positions: map[string]domain.Position{
			"ETH/USDT": {Symbol: "ETH/USDT", Quantity: d("5"), EntryPrice: d("90"), EntryTime: testNow.Add(-time.Hour)},
		},
	})
	require.True(t, h.loop.Paused())

	h.loop.Tick(context.Background())

	positions := h.loop.Positions()
	assert.NotContains(t, positions, "BTC/USDT", "no entry while paused")
	assert.NotContains(t, positions, "ETH/USDT", "exit still closes the position")
	assert.True(t, h.wallet.Balance("ETH").IsZero())
	assert.True(t, h.wallet.Balance("BTC").IsZero())

	var closeMsg string
	for _, m := range h.notifier.sent {
		if m.key == keyTradeClose {
			closeMsg = m.msg
		}
	}
	assert.Contains(t, closeMsg, "PnL=50.00")
}

func TestTick_DailyLossPausesAndResumes(t *testing.T) {
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("9000")}, func(_ *Settings, deps *Deps) {
		deps.Equity = []domain.EquityPoint{{Time: testNow.Add(-time.Hour), Equity: d("10000")}}
	})
	h.source.bars["BTC/USDT"] = flatBars(30, 100)

	h.loop.Tick(context.Background())
	assert.True(t, h.loop.Paused())
	assert.Contains(t, h.notifier.keys(), keyRiskPause)
	assert.Contains(t, h.notifier.sent[0].msg, "-10.00%")
	assert.True(t, h.store.LoadStatus(domain.ModePaper).Paused)
}

func TestTick_ResumeNotifies(t *testing.T) {
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000")})
	h.loop.Restore(&journal.BotState{Paused: true})

	h.loop.Tick(context.Background())
	assert.False(t, h.loop.Paused())
	assert.Equal(t, []string{keyRiskResume}, h.notifier.keys())
}

func TestTick_SymbolFailureDoesNotStopOthers(t *testing.T) {
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000")})
	h.source.err["BTC/USDT"] = errors.Wrap(domain.ErrDataUnavailable, "boom")
	h.source.bars["ETH/USDT"] = flatBars(30, 100)
	h.strategy.entry = true

	h.loop.Tick(context.Background())

	assert.Contains(t, h.loop.Positions(), "ETH/USDT")
	assert.Equal(t, 1, h.strategy.calls)
}

func TestTick_ExposureLimitSkipsEntry(t *testing.T) {
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000")}, func(s *Settings, _ *Deps) {
		s.RiskPerTrade = d("0.5")
	})
	h.source.bars["BTC/USDT"] = flatBars(30, 100)
	h.strategy.entry = true

	h.loop.Tick(context.Background())
	assert.Empty(t, h.loop.Positions())
	assert.True(t, h.wallet.Balance("USDT").Equal(d("10000")))
}

func TestTick_InsufficientBalanceIsNoop(t *testing.T) {
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000")}, func(_ *Settings, deps *Deps) {
		deps.Limiter = risk.NewLimiter(domain.RiskLimits{
			MaxConcurrent: 2,
			MaxExposure:   d("1000"),
			MaxDailyLoss:  d("0.05"),
		}, func() time.Time { return testNow })
	}, func(s *Settings, _ *Deps) {
		s.RiskPerTrade = d("10")
	})
	h.source.bars["BTC/USDT"] = flatBars(30, 100)
	h.strategy.entry = true

	h.loop.Tick(context.Background())
	assert.Empty(t, h.loop.Positions())
	assert.NotContains(t, h.notifier.keys(), keyTradeOpen)
}

func TestTick_TrainsModelOnNewRows(t *testing.T) {
	model := ml.New(7, 0.55)
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000")}, func(_ *Settings, deps *Deps) {
		deps.Model = model
	})
	bars := wavyBars(260)
	h.source.bars["BTC/USDT"] = bars

	h.loop.Tick(context.Background())
	require.True(t, model.Trained())

	trained := h.loop.lastTrained["BTC/USDT"]
	assert.True(t, bars[258].OpenTime.Equal(trained), "the last bar has no label")

	last := h.journal.states[len(h.journal.states)-1]
	require.NotNil(t, last.Model)
	assert.True(t, trained.Equal(last.LastTrained["BTC/USDT"]))
}

func TestRestore_SkipsInvalidPositions(t *testing.T) {
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000")})
	h.loop.Restore(&journal.BotState{
		Positions: map[string]domain.Position{
			"BTC/USDT": {Symbol: "BTC/USDT", Quantity: decimal.Zero, EntryPrice: d("1")},
			"ETH/USDT": {Symbol: "ETH/USDT", Quantity: d("1"), EntryPrice: d("1")},
		},
		LastProcessed: map[string]time.Time{"ETH/USDT": testNow},
	})

	assert.NotContains(t, h.loop.Positions(), "BTC/USDT")
	assert.Contains(t, h.loop.Positions(), "ETH/USDT")
	assert.Equal(t, testNow, h.loop.lastProcessed["ETH/USDT"])
}

// panicOnceStrategy panics on its first call and signals an entry afterwards.
type panicOnceStrategy struct {
	calls int
}

func (s *panicOnceStrategy) Name() string { return "panic_once" }

func (s *panicOnceStrategy) GenerateSignals(bars []domain.Bar) (strategy.Signals, error) {
	s.calls++
	if s.calls == 1 {
		panic("broken strategy")
	}
	return (&fixedStrategy{entry: true}).GenerateSignals(bars)
}

func TestSafeTick_RecoversPanics(t *testing.T) {
	strat := &panicOnceStrategy{}
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000")}, func(_ *Settings, deps *Deps) {
		deps.Strategy = strat
	})
	h.source.bars["BTC/USDT"] = flatBars(30, 100)
	h.source.bars["ETH/USDT"] = flatBars(30, 100)

	assert.NotPanics(t, func() { h.loop.safeTick(context.Background()) })

	assert.Equal(t, 2, strat.calls, "the second symbol is still processed")
	assert.Equal(t, 2, h.source.calls)
	positions := h.loop.Positions()
	assert.NotContains(t, positions, "BTC/USDT")
	assert.Contains(t, positions, "ETH/USDT")

	require.Len(t, h.journal.states, 1, "end-of-tick state is journaled")
	status := h.store.LoadStatus(domain.ModePaper)
	require.Len(t, status.OpenPositions, 1)
	assert.Equal(t, "ETH/USDT", status.OpenPositions[0].Symbol)
	assert.NotEmpty(t, h.loop.EquityCurve())
}

func TestGuardedProcessSymbol_PanicBecomesStageError(t *testing.T) {
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000")}, func(_ *Settings, deps *Deps) {
		deps.Strategy = &panicOnceStrategy{}
	})
	h.source.bars["BTC/USDT"] = flatBars(30, 100)

	err := h.loop.guardedProcessSymbol(context.Background(), "BTC/USDT")
	require.Error(t, err)
	assert.Equal(t, stagePanic, stageOf(err))
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, map[string]decimal.Decimal{"USDT": d("10000")})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	require.Eventually(t, func() bool {
		h.source.mu.Lock()
		defer h.source.mu.Unlock()
		return h.source.calls >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}
