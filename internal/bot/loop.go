// Package bot runs the polling trading loop: one goroutine owns positions,
// the pause flag and the equity curve.
package bot

import (
	"context"
	"runtime/debug"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/events"
	"github.com/vadiminshakov/tradeit/internal/marketdata"
	"github.com/vadiminshakov/tradeit/internal/ml"
	"github.com/vadiminshakov/tradeit/internal/risk"
	"github.com/vadiminshakov/tradeit/internal/storage/journal"
	"github.com/vadiminshakov/tradeit/internal/strategy"
	"github.com/vadiminshakov/tradeit/pkg/indicators"
	"go.uber.org/zap"
)

const (
	minPollInterval     = 10 * time.Second
	defaultHistoryLimit = 500

	keyTradeOpen  = "trade_open"
	keyTradeClose = "trade_close"
	keyRiskPause  = "risk_pause"
	keyRiskResume = "risk_resume"
	tradeInterval = 10 * time.Second
	riskInterval  = 300 * time.Second
)

type orderRouter interface {
	ExecuteOrder(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal) (domain.FillRecord, error)
	Mode() domain.Mode
}

type portfolio interface {
	SetPrices(prices map[string]decimal.Decimal)
	TotalValue(prices map[string]decimal.Decimal) decimal.Decimal
}

type notifier interface {
	Notify(ctx context.Context, key, msg string, minInterval time.Duration) bool
}

type statusStore interface {
	SaveStatus(status domain.StatusSnapshot) error
	SaveEquity(points []domain.EquityPoint) error
}

type stateJournal interface {
	SaveState(st journal.BotState) error
}

type metricsSink interface {
	ObserveTick(seconds float64)
	ObserveOrder(mode, side, outcome string)
	ObserveSymbolError(symbol, stage string)
	ObserveNotification(key string)
	SetPortfolio(equity float64, openPositions int, paused bool, dailyPct float64)
}

// ensemble strategies report which member they delegated to.
type selector interface {
	Selected(bars []domain.Bar) (string, error)
}

// Settings are the loop's tunables.
type Settings struct {
	Symbols       []string
	Timeframe     domain.Timeframe
	HistoryLimit  int
	PollInterval  time.Duration
	RiskPerTrade  decimal.Decimal
	StopATRMult   decimal.Decimal
	MLGateEntries bool
}

// Deps are the loop's collaborators. Journal, Model, Broadcaster and Metrics are optional.
type Deps struct {
	Source      marketdata.Source
	Strategy    strategy.Strategy
	Router      orderRouter
	Wallet      portfolio
	Limiter     *risk.Limiter
	Notifier    notifier
	Store       statusStore
	Journal     stateJournal
	Model       *ml.Model
	Broadcaster *events.StatusBroadcaster
	Metrics     metricsSink
	// Equity is the persisted curve the loop continues from.
	Equity []domain.EquityPoint
	Logger *zap.Logger
	Now    func() time.Time
}

// Loop is the trading state machine. Tick must only be called from one goroutine.
type Loop struct {
	settings Settings
	deps     Deps
	logger   *zap.Logger
	now      func() time.Time

	positions     map[string]*domain.Position
	paused        bool
	lastProcessed map[string]time.Time
	lastTrained   map[string]time.Time
	// last close per base asset
	prices   map[string]decimal.Decimal
	curve    *domain.EquityCurve
	selected string
}

// New validates the wiring and creates a loop with no open positions.
func New(settings Settings, deps Deps) (*Loop, error) {
	switch {
	case len(settings.Symbols) == 0:
		return nil, errors.New("at least one symbol is required")
	case deps.Source == nil:
		return nil, errors.New("market data source is required")
	case deps.Strategy == nil:
		return nil, errors.New("strategy is required")
	case deps.Router == nil:
		return nil, errors.New("order router is required")
	case deps.Wallet == nil:
		return nil, errors.New("wallet is required")
	case deps.Limiter == nil:
		return nil, errors.New("risk limiter is required")
	case deps.Notifier == nil:
		return nil, errors.New("notifier is required")
	case deps.Store == nil:
		return nil, errors.New("state store is required")
	}
	for _, symbol := range settings.Symbols {
		if _, err := domain.ParsePair(symbol); err != nil {
			return nil, err
		}
	}

	if settings.HistoryLimit <= 0 {
		settings.HistoryLimit = defaultHistoryLimit
	}
	if settings.PollInterval < minPollInterval {
		settings.PollInterval = minPollInterval
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Loop{
		settings:      settings,
		deps:          deps,
		logger:        logger.With(zap.String("component", "loop")),
		now:           now,
		positions:     make(map[string]*domain.Position),
		lastProcessed: make(map[string]time.Time),
		lastTrained:   make(map[string]time.Time),
		prices:        make(map[string]decimal.Decimal),
		curve:         domain.NewEquityCurve(deps.Equity),
	}, nil
}

// Run ticks immediately and then every poll interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.settings.PollInterval)
	defer ticker.Stop()

	l.logger.Info("starting trading loop",
		zap.Strings("symbols", l.settings.Symbols),
		zap.String("timeframe", l.settings.Timeframe.String()),
		zap.String("strategy", l.deps.Strategy.Name()),
		zap.String("mode", string(l.deps.Router.Mode())),
		zap.Duration("poll_interval", l.settings.PollInterval))

	l.safeTick(ctx)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("context done, stopping trading loop")
			return nil
		case <-ticker.C:
			l.safeTick(ctx)
		}
	}
}

func (l *Loop) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("tick panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()
	l.Tick(ctx)
}

// Tick processes every symbol once, then snapshots equity, re-evaluates the
// pause flag and persists state. Per-symbol failures are logged and skipped.
func (l *Loop) Tick(ctx context.Context) {
	start := l.now()

	for _, symbol := range l.settings.Symbols {
		if ctx.Err() != nil {
			return
		}
		if err := l.guardedProcessSymbol(ctx, symbol); err != nil {
			stage := stageOf(err)
			l.logger.Error("symbol processing failed",
				zap.String("symbol", symbol), zap.String("stage", stage), zap.Error(err))
			if l.deps.Metrics != nil {
				l.deps.Metrics.ObserveSymbolError(symbol, stage)
			}
		}
	}

	l.afterSymbols(ctx)

	if l.deps.Metrics != nil {
		l.deps.Metrics.ObserveTick(l.now().Sub(start).Seconds())
	}
}

// Paused reports whether entries are currently blocked.
func (l *Loop) Paused() bool {
	return l.paused
}

// Positions returns a copy of the open positions keyed by symbol.
func (l *Loop) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(l.positions))
	for symbol, p := range l.positions {
		out[symbol] = *p
	}
	return out
}

// EquityCurve returns the loop's equity snapshots.
func (l *Loop) EquityCurve() []domain.EquityPoint {
	return l.curve.Points()
}

// guardedProcessSymbol turns a panic in one symbol into a stage error so the
// remaining symbols and the end-of-tick bookkeeping still run.
func (l *Loop) guardedProcessSymbol(ctx context.Context, symbol string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("symbol processing panicked",
				zap.String("symbol", symbol), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = withStage(stagePanic, errors.Errorf("panic: %v", r))
		}
	}()
	return l.processSymbol(ctx, symbol)
}

func (l *Loop) processSymbol(ctx context.Context, symbol string) error {
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return withStage(stageFetch, err)
	}

	bars, err := l.deps.Source.Fetch(ctx, symbol, l.settings.Timeframe, l.settings.HistoryLimit)
	if err != nil {
		return withStage(stageFetch, err)
	}
	if len(bars) == 0 {
		return nil
	}

	last := bars[len(bars)-1]
	l.setPrice(pair.Base, last.Close)

	if seen, ok := l.lastProcessed[symbol]; ok && !last.OpenTime.After(seen) {
		return nil
	}

	features, err := indicators.Compute(bars)
	if err != nil {
		return withStage(stageFeatures, err)
	}
	signals, err := l.deps.Strategy.GenerateSignals(bars)
	if err != nil {
		return withStage(stageSignals, err)
	}
	if len(signals.Entries) != len(bars) || len(signals.Exits) != len(bars) {
		return withStage(stageSignals, errors.Errorf("signals not aligned with %d bars", len(bars)))
	}
	entry, exit := signals.Last()
	l.lastProcessed[symbol] = last.OpenTime

	if sel, ok := l.deps.Strategy.(selector); ok {
		if name, err := sel.Selected(bars); err == nil {
			l.selected = name
		}
	}

	l.updateModel(symbol, bars)

	position, open := l.positions[symbol]
	switch {
	case open && exit:
		return l.exitPosition(ctx, symbol, position, last.Close)
	case !open && entry:
		if l.paused {
			l.logger.Info("entries paused, skipping entry signal", zap.String("symbol", symbol))
			return nil
		}
		return l.enterPosition(ctx, symbol, last.Close, features)
	}
	return nil
}

func (l *Loop) setPrice(asset string, price decimal.Decimal) {
	l.prices[asset] = price
	l.deps.Wallet.SetPrices(l.priceMap())
}

func (l *Loop) priceMap() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(l.prices))
	for asset, p := range l.prices {
		out[asset] = p
	}
	return out
}

func (l *Loop) equity() decimal.Decimal {
	return l.deps.Wallet.TotalValue(l.priceMap())
}

func (l *Loop) strategyName() string {
	if l.selected != "" {
		return l.selected
	}
	return l.deps.Strategy.Name()
}

func (l *Loop) notify(ctx context.Context, key, msg string, interval time.Duration) {
	if l.deps.Notifier.Notify(ctx, key, msg, interval) && l.deps.Metrics != nil {
		l.deps.Metrics.ObserveNotification(key)
	}
}

func (l *Loop) openPositions() []domain.OpenPosition {
	symbols := make([]string, 0, len(l.positions))
	for symbol := range l.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	out := make([]domain.OpenPosition, 0, len(symbols))
	for _, symbol := range symbols {
		out = append(out, l.positions[symbol].Open())
	}
	return out
}
