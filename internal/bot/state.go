package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/events"
	"github.com/vadiminshakov/tradeit/internal/storage/journal"
	"go.uber.org/zap"
)

// Restore resumes from a journaled state. Call before Run.
func (l *Loop) Restore(st *journal.BotState) {
	if st == nil {
		return
	}

	for symbol, p := range st.Positions {
		position, err := domain.NewPosition(symbol, p.Quantity, p.EntryPrice, p.EntryTime)
		if err != nil {
			l.logger.Warn("dropping invalid journaled position", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		l.positions[symbol] = position
	}
	l.paused = st.Paused
	for symbol, t := range st.LastProcessed {
		l.lastProcessed[symbol] = t
	}
	for symbol, t := range st.LastTrained {
		l.lastTrained[symbol] = t
	}
	if st.Model != nil && l.deps.Model != nil {
		if err := l.deps.Model.Restore(*st.Model); err != nil {
			l.logger.Warn("discarding journaled model", zap.Error(err))
		}
	}

	l.logger.Info("restored loop state",
		zap.Int("positions", len(l.positions)),
		zap.Bool("paused", l.paused),
		zap.Time("updated_at", st.UpdatedAt))
}

// afterSymbols snapshots equity, re-evaluates the pause flag and publishes state.
func (l *Loop) afterSymbols(ctx context.Context) {
	now := l.now().UTC()
	equity := l.equity()
	l.curve.Append(now, equity)

	points := l.curve.Points()
	shouldPause := l.deps.Limiter.ShouldPauseTrading(points)
	dailyPct := l.deps.Limiter.DailyLossPct(points)
	switch {
	case shouldPause && !l.paused:
		l.logger.Warn("daily loss limit hit, pausing entries", zap.Float64("daily_loss_pct", dailyPct))
		l.notify(ctx, keyRiskPause, fmt.Sprintf("Daily loss limit hit (%.2f%%), pausing entries", dailyPct), riskInterval)
	case !shouldPause && l.paused:
		l.logger.Info("trading resumed", zap.Float64("daily_loss_pct", dailyPct))
		l.notify(ctx, keyRiskResume, "Trading resumed", riskInterval)
	}
	l.paused = shouldPause

	status := domain.StatusSnapshot{
		Timestamp:     now,
		Mode:          l.deps.Router.Mode(),
		Equity:        equity,
		Paused:        l.paused,
		OpenPositions: l.openPositions(),
		Strategy:      l.strategyName(),
	}
	if err := l.deps.Store.SaveStatus(status); err != nil {
		l.logger.Warn("failed to persist status", zap.Error(err))
	}
	if err := l.deps.Store.SaveEquity(points); err != nil {
		l.logger.Warn("failed to persist equity", zap.Error(err))
	}
	l.saveJournal(now)
	l.publish(status, dailyPct)

	if l.deps.Metrics != nil {
		l.deps.Metrics.SetPortfolio(equity.InexactFloat64(), len(l.positions), l.paused, dailyPct)
	}
}

func (l *Loop) saveJournal(now time.Time) {
	if l.deps.Journal == nil {
		return
	}

	st := journal.BotState{
		Positions:     make(map[string]domain.Position, len(l.positions)),
		Paused:        l.paused,
		LastProcessed: make(map[string]time.Time, len(l.lastProcessed)),
		LastTrained:   make(map[string]time.Time, len(l.lastTrained)),
		UpdatedAt:     now,
	}
	for symbol, p := range l.positions {
		st.Positions[symbol] = *p
	}
	for symbol, t := range l.lastProcessed {
		st.LastProcessed[symbol] = t
	}
	for symbol, t := range l.lastTrained {
		st.LastTrained[symbol] = t
	}
	if l.deps.Model != nil && l.deps.Model.Trained() {
		snap := l.deps.Model.Snapshot()
		st.Model = &snap
	}

	if err := l.deps.Journal.SaveState(st); err != nil {
		l.logger.Warn("failed to journal loop state", zap.Error(err))
	}
}

func (l *Loop) publish(status domain.StatusSnapshot, dailyPct float64) {
	if l.deps.Broadcaster == nil {
		return
	}

	prices := make(map[string]string, len(l.prices))
	for asset, p := range l.prices {
		prices[asset] = p.String()
	}
	l.deps.Broadcaster.Publish(events.StatusEvent{
		Timestamp:     status.Timestamp,
		Mode:          string(status.Mode),
		Equity:        status.Equity.StringFixed(2),
		Paused:        status.Paused,
		OpenPositions: len(status.OpenPositions),
		DailyLossPct:  dailyPct,
		Strategy:      status.Strategy,
		Prices:        prices,
	})
}
