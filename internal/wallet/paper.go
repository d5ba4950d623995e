// Package wallet implements the simulated balance sheet used in paper mode.
package wallet

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/storage/simstate"
	"go.uber.org/zap"
)

// DefaultFeeBps is the taker fee applied when none is configured (0.1%).
const DefaultFeeBps = 10

var bpsDivisor = decimal.NewFromInt(10_000)

// PaperWallet is an in-memory spot account. Balances never go negative:
// orders that would do so are rejected with domain.ErrInsufficientBalance.
type PaperWallet struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	balances map[string]decimal.Decimal
	feeRate  decimal.Decimal
	slippage decimal.Decimal
	// prices values assets in quote terms, keyed by asset (e.g. BTC).
	prices     map[string]decimal.Decimal
	history    *domain.EquityCurve
	stateStore *simstate.Store
	now        func() time.Time
}

// Option configures a PaperWallet.
type Option func(*PaperWallet)

// WithFeeBps sets the fee in basis points of notional.
func WithFeeBps(bps int64) Option {
	return func(w *PaperWallet) {
		w.feeRate = decimal.NewFromInt(bps).Div(bpsDivisor)
	}
}

// WithSlippageBps moves the fill price against the order by bps.
func WithSlippageBps(bps int64) Option {
	return func(w *PaperWallet) {
		w.slippage = decimal.NewFromInt(bps).Div(bpsDivisor)
	}
}

// WithStateStore persists balances after every fill and restores them on creation.
func WithStateStore(store *simstate.Store) Option {
	return func(w *PaperWallet) {
		w.stateStore = store
	}
}

// WithClock overrides time.Now for equity timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *PaperWallet) {
		w.now = now
	}
}

// New creates a wallet funded with initial balances.
func New(initial map[string]decimal.Decimal, logger *zap.Logger, opts ...Option) (*PaperWallet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &PaperWallet{
		logger:   logger,
		balances: make(map[string]decimal.Decimal, len(initial)),
		feeRate:  decimal.NewFromInt(DefaultFeeBps).Div(bpsDivisor),
		slippage: decimal.Zero,
		prices:   make(map[string]decimal.Decimal),
		history:  &domain.EquityCurve{},
		now:      time.Now,
	}
	for asset, qty := range initial {
		if qty.IsNegative() {
			return nil, errors.Errorf("initial %s balance is negative: %s", asset, qty.String())
		}
		w.balances[asset] = qty
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.restoreState(); err != nil {
		logger.Warn("failed to restore wallet state", zap.Error(err))
	}

	logger.Info("paper wallet init",
		zap.Any("balances", w.Balances()),
		zap.String("fee_rate", w.feeRate.String()),
		zap.String("slippage", w.slippage.String()))
	return w, nil
}

// Execute applies a market order at price and returns the fill.
func (w *PaperWallet) Execute(symbol string, side domain.Side, quantity, price decimal.Decimal) (domain.Fill, error) {
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return domain.Fill{}, err
	}
	if !quantity.IsPositive() {
		return domain.Fill{}, errors.Wrapf(domain.ErrInvalidQuantity, "quantity %s", quantity.String())
	}
	if !price.IsPositive() {
		return domain.Fill{}, errors.Errorf("price must be positive, got %s", price.String())
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var fill domain.Fill
	switch side {
	case domain.SideBuy:
		fill, err = w.buy(pair, quantity, price)
	case domain.SideSell:
		fill, err = w.sell(pair, quantity, price)
	default:
		return domain.Fill{}, errors.Wrapf(domain.ErrInvalidSide, "%q", side)
	}
	if err != nil {
		return domain.Fill{}, err
	}

	w.history.Append(w.now().UTC(), w.totalValueLocked(w.prices))
	w.persist()

	w.logger.Info("paper order executed",
		zap.String("symbol", pair.String()),
		zap.String("side", side.String()),
		zap.String("quantity", fill.Quantity.String()),
		zap.String("price", fill.Price.String()),
		zap.String("fee", fill.Fee.String()))
	return fill, nil
}

func (w *PaperWallet) buy(pair domain.Pair, quantity, price decimal.Decimal) (domain.Fill, error) {
	fillPrice := price.Mul(decimal.NewFromInt(1).Add(w.slippage))
	notional := quantity.Mul(fillPrice)
	fee := notional.Mul(w.feeRate)
	required := notional.Add(fee)

	if have := w.balances[pair.Quote]; have.LessThan(required) {
		return domain.Fill{}, errors.Wrapf(domain.ErrInsufficientBalance,
			"%s: have %s need %s", pair.Quote, have.String(), required.String())
	}

	w.balances[pair.Quote] = w.balances[pair.Quote].Sub(required)
	w.balances[pair.Base] = w.balances[pair.Base].Add(quantity)

	return domain.Fill{Price: fillPrice, Fee: fee, Quantity: quantity}, nil
}

func (w *PaperWallet) sell(pair domain.Pair, quantity, price decimal.Decimal) (domain.Fill, error) {
	if have := w.balances[pair.Base]; have.LessThan(quantity) {
		return domain.Fill{}, errors.Wrapf(domain.ErrInsufficientBalance,
			"%s: have %s need %s", pair.Base, have.String(), quantity.String())
	}

	fillPrice := price.Mul(decimal.NewFromInt(1).Sub(w.slippage))
	notional := quantity.Mul(fillPrice)
	fee := notional.Mul(w.feeRate)

	w.balances[pair.Base] = w.balances[pair.Base].Sub(quantity)
	w.balances[pair.Quote] = w.balances[pair.Quote].Add(notional.Sub(fee))

	return domain.Fill{Price: fillPrice, Fee: fee, Quantity: quantity}, nil
}

// SetPrices sets the asset price map used to value equity after each execution.
func (w *PaperWallet) SetPrices(prices map[string]decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prices = make(map[string]decimal.Decimal, len(prices))
	for asset, p := range prices {
		w.prices[asset] = p
	}
}

// TotalValue sums balances. With a nil or empty price map raw units are summed,
// otherwise each asset is converted by its price, defaulting to 1.
func (w *PaperWallet) TotalValue(prices map[string]decimal.Decimal) decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.totalValueLocked(prices)
}

func (w *PaperWallet) totalValueLocked(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for asset, qty := range w.balances {
		price, ok := prices[asset]
		if !ok {
			price = decimal.NewFromInt(1)
		}
		total = total.Add(qty.Mul(price))
	}
	return total
}

// Balance returns the free quantity of asset.
func (w *PaperWallet) Balance(asset string) decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.balances[asset]
}

// Balances returns a copy of all balances.
func (w *PaperWallet) Balances() map[string]decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(w.balances))
	for asset, qty := range w.balances {
		out[asset] = qty
	}
	return out
}

// EquityHistory returns the wallet's own equity snapshots.
func (w *PaperWallet) EquityHistory() []domain.EquityPoint {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.history.Points()
}

// LastEquity returns the latest recorded equity, falling back to the raw total.
func (w *PaperWallet) LastEquity() decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if last, ok := w.history.Last(); ok {
		return last.Equity
	}
	return w.totalValueLocked(nil)
}

func (w *PaperWallet) restoreState() error {
	if w.stateStore == nil {
		return nil
	}
	state, err := w.stateStore.Load()
	if err != nil || state == nil {
		return err
	}

	balances, err := state.Decode()
	if err != nil {
		return err
	}
	for asset, qty := range balances {
		if qty.IsNegative() {
			return errors.Errorf("stored %s balance is negative", asset)
		}
	}

	w.mu.Lock()
	w.balances = balances
	w.mu.Unlock()
	return nil
}

func (w *PaperWallet) persist() {
	if w.stateStore == nil {
		return
	}

	if err := w.stateStore.Save(simstate.NewState(w.balances, w.now().UTC())); err != nil {
		w.logger.Warn("failed to persist wallet state",
			zap.Error(errors.Wrap(domain.ErrPersistenceFailure, err.Error())))
	}
}

// SyncBalances replaces balances with exchange-reported ones and records equity.
// Used in live mode where the exchange is the source of truth.
func (w *PaperWallet) SyncBalances(balances map[string]decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.balances = make(map[string]decimal.Decimal, len(balances))
	for asset, qty := range balances {
		if qty.IsNegative() {
			continue
		}
		w.balances[asset] = qty
	}
	w.history.Append(w.now().UTC(), w.totalValueLocked(w.prices))
	w.persist()
}
