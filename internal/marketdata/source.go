// Package marketdata provides closed OHLCV bars for the trading loop.
package marketdata

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/pkg/retrier"
	"go.uber.org/zap"
)

// Source returns the latest limit closed bars for a symbol, oldest first.
// An empty result is valid; bars are never partially constructed.
type Source interface {
	Fetch(ctx context.Context, symbol string, timeframe domain.Timeframe, limit int) ([]domain.Bar, error)
}

// BinanceSource reads spot klines from Binance.
type BinanceSource struct {
	client  *binance.Client
	retrier *retrier.Retrier
	now     func() time.Time
}

// NewBinanceSource creates a kline source. Public market data needs no credentials.
func NewBinanceSource(client *binance.Client, logger *zap.Logger) *BinanceSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BinanceSource{
		client: client,
		retrier: retrier.New(retrier.WithOnRetry(func(attempt int, err error) {
			logger.Warn("kline fetch failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		})),
		now: time.Now,
	}
}

// Fetch implements Source.
func (s *BinanceSource) Fetch(ctx context.Context, symbol string, timeframe domain.Timeframe, limit int) ([]domain.Bar, error) {
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return nil, err
	}

	// one extra kline covers the still-open bar that gets dropped
	klines, err := retrier.DoWithData(s.retrier, ctx, func(ctx context.Context) ([]*binance.Kline, error) {
		return s.client.NewKlinesService().
			Symbol(pair.Symbol()).
			Interval(timeframe.String()).
			Limit(limit + 1).
			Do(ctx)
	})
	if err != nil {
		return nil, errors.Wrapf(domain.ErrDataUnavailable, "fetch klines for %s: %v", pair.String(), err)
	}

	bars, err := closedBars(klines, s.now())
	if err != nil {
		return nil, errors.Wrapf(domain.ErrDataUnavailable, "%s: %v", pair.String(), err)
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// closedBars converts klines and drops bars that have not closed by now.
func closedBars(klines []*binance.Kline, now time.Time) ([]domain.Bar, error) {
	nowMs := now.UnixMilli()
	bars := make([]domain.Bar, 0, len(klines))
	for i, k := range klines {
		if k == nil || k.CloseTime >= nowMs {
			continue
		}

		open, err := decimal.NewFromString(k.Open)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse open price at index %d", i)
		}
		high, err := decimal.NewFromString(k.High)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse high price at index %d", i)
		}
		low, err := decimal.NewFromString(k.Low)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse low price at index %d", i)
		}
		closePrice, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse close price at index %d", i)
		}
		volume, err := decimal.NewFromString(k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse volume at index %d", i)
		}

		bars = append(bars, domain.Bar{
			OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: time.UnixMilli(k.CloseTime).UTC(),
		})
	}
	return bars, nil
}
