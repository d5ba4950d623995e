package marketdata

import (
	"context"

	"github.com/vadiminshakov/tradeit/internal/domain"
	"go.uber.org/zap"
)

// CandleWriter stores fetched bars.
type CandleWriter interface {
	Store(ctx context.Context, symbol string, timeframe domain.Timeframe, bars []domain.Bar) error
}

// ArchivingSource copies every fetched window into a candle store.
// Archive failures are logged and never fail the fetch.
type ArchivingSource struct {
	source Source
	writer CandleWriter
	logger *zap.Logger
}

// NewArchivingSource wraps source.
func NewArchivingSource(source Source, writer CandleWriter, logger *zap.Logger) *ArchivingSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchivingSource{source: source, writer: writer, logger: logger}
}

// Fetch implements Source.
func (a *ArchivingSource) Fetch(ctx context.Context, symbol string, timeframe domain.Timeframe, limit int) ([]domain.Bar, error) {
	bars, err := a.source.Fetch(ctx, symbol, timeframe, limit)
	if err != nil || len(bars) == 0 {
		return bars, err
	}

	if err := a.writer.Store(ctx, symbol, timeframe, bars); err != nil {
		a.logger.Warn("failed to archive candles",
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe.String()),
			zap.Error(err))
	}
	return bars, nil
}
