// Package risk holds the portfolio risk policy: position and exposure limits,
// the daily loss kill-switch and volatility-normalized position sizing.
package risk

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/internal/domain"
)

// Limiter evaluates risk limits. It is stateless apart from its configuration
// and clock; every check reads only the inputs it is given.
type Limiter struct {
	limits domain.RiskLimits
	now    func() time.Time
}

// NewLimiter creates a limiter. A nil clock defaults to time.Now.
func NewLimiter(limits domain.RiskLimits, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{limits: limits, now: now}
}

// Limits returns the configured limits.
func (l *Limiter) Limits() domain.RiskLimits {
	return l.limits
}

// CheckPositionLimit reports whether another position may be opened.
func (l *Limiter) CheckPositionLimit(openCount int) bool {
	return openCount < l.limits.MaxConcurrent
}

// CheckExposure reports whether projected exposure fits the budget.
func (l *Limiter) CheckExposure(projected decimal.Decimal) bool {
	return projected.LessThanOrEqual(l.limits.MaxExposure)
}

// DailyLossPct returns the percent change between the first and last equity
// snapshots of the current UTC day, or zero when none were recorded today.
// The ratio is taken in float64 so boundary behaviour matches the thresholds below.
func (l *Limiter) DailyLossPct(curve []domain.EquityPoint) float64 {
	y, m, d := l.now().UTC().Date()

	var first, last *domain.EquityPoint
	for i := range curve {
		py, pm, pd := curve[i].Time.UTC().Date()
		if py != y || pm != m || pd != d {
			continue
		}
		if first == nil {
			first = &curve[i]
		}
		last = &curve[i]
	}
	if first == nil || !first.Equity.IsPositive() {
		return 0
	}

	return (last.Equity.InexactFloat64()/first.Equity.InexactFloat64() - 1.0) * 100.0
}

// CheckDailyLoss reports whether today's loss is within budget.
// A loss exactly at the limit is still within budget here.
func (l *Limiter) CheckDailyLoss(curve []domain.EquityPoint) bool {
	return l.DailyLossPct(curve) >= l.lossThreshold()
}

// ShouldPauseTrading reports whether entries must stop for the day.
// A loss exactly at the limit pauses, unlike CheckDailyLoss.
func (l *Limiter) ShouldPauseTrading(curve []domain.EquityPoint) bool {
	return l.DailyLossPct(curve) <= l.lossThreshold()
}

func (l *Limiter) lossThreshold() float64 {
	return -l.limits.MaxDailyLoss.InexactFloat64() * 100.0
}
