// Package execution routes orders to the paper wallet or to the exchange.
package execution

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/storage/journal"
	"go.uber.org/zap"
)

// OrderResult is what an exchange reports for a filled market order.
type OrderResult struct {
	ClientOrderID    string
	ExecutedQuantity decimal.Decimal
	AvgPrice         decimal.Decimal
	Fee              decimal.Decimal
	Raw              map[string]any
}

// ExecutionClient submits market orders to an exchange.
type ExecutionClient interface {
	CreateOrder(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal) (*OrderResult, error)
}

// BalanceFetcher reports exchange balances.
type BalanceFetcher interface {
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
}

type paperWallet interface {
	Execute(symbol string, side domain.Side, quantity, price decimal.Decimal) (domain.Fill, error)
	LastEquity() decimal.Decimal
	SyncBalances(balances map[string]decimal.Decimal)
}

type intentJournal interface {
	Prepare(symbol string, side domain.Side, quantity, price decimal.Decimal, at time.Time) (*journal.OrderIntent, error)
	MarkDone(intent *journal.OrderIntent) error
	MarkFailed(intent *journal.OrderIntent, cause error) error
}

// FillCallback receives every successful fill.
type FillCallback func(domain.FillRecord)

// Router dispatches orders according to the resolved mode.
type Router struct {
	mode    domain.Mode
	wallet  paperWallet
	client  ExecutionClient
	journal intentJournal
	onFill  FillCallback
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithJournal brackets live orders with journal intents.
func WithJournal(j intentJournal) Option {
	return func(r *Router) {
		r.journal = j
	}
}

// WithFillCallback registers the callback invoked after each successful order.
func WithFillCallback(cb FillCallback) Option {
	return func(r *Router) {
		r.onFill = cb
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// NewRouter creates a router. Live mode requires an execution client.
func NewRouter(mode domain.Mode, wallet paperWallet, client ExecutionClient, logger *zap.Logger, opts ...Option) (*Router, error) {
	if wallet == nil {
		return nil, errors.New("wallet is required")
	}
	if mode == domain.ModeLive && client == nil {
		return nil, errors.New("live mode requires an execution client")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Router{
		mode:   mode,
		wallet: wallet,
		client: client,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Mode returns the mode orders are routed in.
func (r *Router) Mode() domain.Mode {
	return r.mode
}

// ExecuteOrder executes a market order and returns the normalized fill record.
// The fill callback runs only after success.
func (r *Router) ExecuteOrder(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal) (domain.FillRecord, error) {
	if r.mode == domain.ModeLive {
		return r.executeLive(ctx, symbol, side, quantity, price)
	}
	return r.executePaper(symbol, side, quantity, price)
}

func (r *Router) executePaper(symbol string, side domain.Side, quantity, price decimal.Decimal) (domain.FillRecord, error) {
	fill, err := r.wallet.Execute(symbol, side, quantity, price)
	if err != nil {
		return domain.FillRecord{}, err
	}

	record := domain.FillRecord{
		Symbol:    symbol,
		Side:      side,
		Amount:    fill.Quantity,
		Price:     fill.Price,
		Fee:       fill.Fee,
		Equity:    r.wallet.LastEquity(),
		Mode:      domain.ModePaper,
		Timestamp: r.now().UTC(),
	}
	r.emit(record)

	return record, nil
}

func (r *Router) executeLive(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal) (domain.FillRecord, error) {
	var intent *journal.OrderIntent
	if r.journal != nil {
		var err error
		intent, err = r.journal.Prepare(symbol, side, quantity, price, r.now().UTC())
		if err != nil {
			return domain.FillRecord{}, errors.Wrap(err, "journal order intent")
		}
	}

	res, err := r.client.CreateOrder(ctx, symbol, side, quantity, price)
	if err != nil {
		r.markFailed(intent, err)
		return domain.FillRecord{}, errors.Wrapf(domain.ErrExecutionFailure, "%s %s %s: %v", side, quantity.String(), symbol, err)
	}
	amount, fillPrice := res.ExecutedQuantity, res.AvgPrice
	if !amount.IsPositive() {
		cause := errors.Errorf("order %s not filled (executed %s)", res.ClientOrderID, amount.String())
		r.markFailed(intent, cause)
		return domain.FillRecord{}, errors.Wrapf(domain.ErrExecutionFailure, "%s %s %s: %v", side, quantity.String(), symbol, cause)
	}
	r.markDone(intent)

	// partial fills report the executed amount, not the requested one
	if !fillPrice.IsPositive() {
		fillPrice = price
	}

	if fetcher, ok := r.client.(BalanceFetcher); ok {
		if balances, err := fetcher.Balances(ctx); err != nil {
			r.logger.Warn("failed to refresh exchange balances", zap.Error(err))
		} else {
			r.wallet.SyncBalances(balances)
		}
	}

	record := domain.FillRecord{
		ClientOrderID: res.ClientOrderID,
		Symbol:        symbol,
		Side:          side,
		Amount:        amount,
		Price:         fillPrice,
		Fee:           res.Fee,
		Equity:        r.wallet.LastEquity(),
		Mode:          domain.ModeLive,
		Timestamp:     r.now().UTC(),
		Raw:           res.Raw,
	}
	r.emit(record)

	return record, nil
}

func (r *Router) emit(record domain.FillRecord) {
	r.logger.Info("order filled",
		zap.String("mode", string(record.Mode)),
		zap.String("symbol", record.Symbol),
		zap.String("side", record.Side.String()),
		zap.String("amount", record.Amount.String()),
		zap.String("price", record.Price.String()))

	if r.onFill != nil {
		r.onFill(record)
	}
}

func (r *Router) markDone(intent *journal.OrderIntent) {
	if r.journal == nil {
		return
	}
	if err := r.journal.MarkDone(intent); err != nil {
		r.logger.Warn("failed to mark order intent done", zap.Error(err))
	}
}

func (r *Router) markFailed(intent *journal.OrderIntent, cause error) {
	if r.journal == nil {
		return
	}
	if err := r.journal.MarkFailed(intent, cause); err != nil {
		r.logger.Warn("failed to mark order intent failed", zap.Error(err))
	}
}
