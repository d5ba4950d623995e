package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/metrics"
	"github.com/vadiminshakov/tradeit/internal/risk"
	"github.com/vadiminshakov/tradeit/pkg/indicators"
	"go.uber.org/zap"
)

func (l *Loop) enterPosition(ctx context.Context, symbol string, price decimal.Decimal, f *indicators.Features) error {
	equity := l.equity()
	quantity := risk.PositionSize(equity, price, f.LastATR(), l.settings.RiskPerTrade, l.settings.StopATRMult)
	if !quantity.IsPositive() {
		l.logger.Debug("position size zero, skipping", zap.String("symbol", symbol))
		return nil
	}

	if l.settings.MLGateEntries && l.deps.Model != nil && l.deps.Model.Trained() {
		p := l.deps.Model.PredictProba(f.Row(f.Len() - 1))
		if !l.deps.Model.ShouldEnter(p) {
			l.logger.Info("model probability below threshold, skipping entry",
				zap.String("symbol", symbol), zap.Float64("probability", p),
				zap.Float64("threshold", l.deps.Model.Threshold()))
			return nil
		}
	}

	if !l.deps.Limiter.CheckPositionLimit(len(l.positions)) {
		l.logger.Info("position limit prevented entry",
			zap.String("symbol", symbol), zap.Int("open", len(l.positions)))
		return nil
	}
	if !equity.IsPositive() {
		l.logger.Info("no equity, skipping entry", zap.String("symbol", symbol))
		return nil
	}
	projected := l.openValue().Add(quantity.Mul(price)).Div(equity)
	if !l.deps.Limiter.CheckExposure(projected) {
		l.logger.Info("exposure limit prevented entry",
			zap.String("symbol", symbol), zap.String("projected", projected.StringFixed(4)))
		return nil
	}

	record, err := l.execute(ctx, symbol, domain.SideBuy, quantity, price)
	if err != nil || record == nil {
		return err
	}

	position, err := domain.NewPosition(symbol, record.Amount, record.Price, record.Timestamp)
	if err != nil {
		return withStage(stageExecute, errors.Wrap(err, "record position"))
	}
	l.positions[symbol] = position

	l.logger.Info("position opened",
		zap.String("symbol", symbol),
		zap.String("strategy", l.strategyName()),
		zap.String("quantity", position.Quantity.String()),
		zap.String("entry_price", position.EntryPrice.String()))
	l.notify(ctx, keyTradeOpen, fmt.Sprintf("[%s] %s BUY qty=%s @ %s",
		symbol, l.strategyName(), position.Quantity.StringFixed(6), position.EntryPrice.StringFixed(2)), tradeInterval)
	return nil
}

func (l *Loop) exitPosition(ctx context.Context, symbol string, position *domain.Position, price decimal.Decimal) error {
	record, err := l.execute(ctx, symbol, domain.SideSell, position.Quantity, price)
	if err != nil || record == nil {
		return err
	}

	exitPrice := record.Price
	if !exitPrice.IsPositive() {
		exitPrice = price
	}
	pnl := position.PnL(exitPrice)
	delete(l.positions, symbol)

	l.logger.Info("position closed",
		zap.String("symbol", symbol),
		zap.String("quantity", position.Quantity.String()),
		zap.String("exit_price", exitPrice.String()),
		zap.String("pnl", pnl.StringFixed(2)))
	l.notify(ctx, keyTradeClose, fmt.Sprintf("[%s] EXIT qty=%s @ %s PnL=%s",
		symbol, position.Quantity.StringFixed(6), exitPrice.StringFixed(2), pnl.StringFixed(2)), tradeInterval)
	return nil
}

// execute routes an order. A wallet rejection is a no-op and yields a nil record.
func (l *Loop) execute(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal) (*domain.FillRecord, error) {
	mode := string(l.deps.Router.Mode())

	record, err := l.deps.Router.ExecuteOrder(ctx, symbol, side, quantity, price)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			l.observeOrder(mode, side, metrics.OutcomeRejected)
			l.logger.Warn("order rejected by wallet",
				zap.String("symbol", symbol), zap.String("side", side.String()),
				zap.String("quantity", quantity.String()), zap.Error(err))
			return nil, nil
		}
		l.observeOrder(mode, side, metrics.OutcomeFailed)
		return nil, withStage(stageExecute, err)
	}

	l.observeOrder(mode, side, metrics.OutcomeFilled)
	return &record, nil
}

func (l *Loop) observeOrder(mode string, side domain.Side, outcome string) {
	if l.deps.Metrics != nil {
		l.deps.Metrics.ObserveOrder(mode, side.String(), outcome)
	}
}

// openValue marks open positions to the cached prices, falling back to entry.
func (l *Loop) openValue() decimal.Decimal {
	total := decimal.Zero
	for symbol, p := range l.positions {
		price := p.EntryPrice
		if pair, err := domain.ParsePair(symbol); err == nil {
			if cached, ok := l.prices[pair.Base]; ok {
				price = cached
			}
		}
		total = total.Add(p.MarketValue(price))
	}
	return total
}

// updateModel trains on labelled bars newer than the last ones seen for symbol.
// Failures are logged and never affect trading.
func (l *Loop) updateModel(symbol string, bars []domain.Bar) {
	if l.deps.Model == nil {
		return
	}

	rows, labels, times, err := indicators.FeatureLabels(bars)
	if err != nil {
		l.logger.Debug("unable to prepare model features", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	since, seen := l.lastTrained[symbol]
	start := 0
	if seen {
		for start < len(times) && times[start] <= since.UnixMilli() {
			start++
		}
	}
	if start >= len(rows) {
		return
	}

	if err := l.deps.Model.PartialFit(rows[start:], labels[start:]); err != nil {
		l.logger.Warn("model update failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	l.lastTrained[symbol] = time.UnixMilli(times[len(times)-1]).UTC()
}
