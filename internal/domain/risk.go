package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// RiskLimits per-session risk configuration.
type RiskLimits struct {
	// MaxConcurrent maximum number of simultaneously open positions.
	MaxConcurrent int
	// MaxExposure maximum open market value as a fraction of equity.
	MaxExposure decimal.Decimal
	// MaxDailyLoss maximum intraday equity drop as a fraction.
	MaxDailyLoss decimal.Decimal
}

// Validate checks limits are usable.
func (l RiskLimits) Validate() error {
	if l.MaxConcurrent <= 0 {
		return errors.Errorf("max concurrent positions must be > 0, got %d", l.MaxConcurrent)
	}
	if l.MaxExposure.IsNegative() {
		return errors.Errorf("max exposure must be >= 0, got %s", l.MaxExposure.String())
	}
	if !l.MaxDailyLoss.IsPositive() {
		return errors.Errorf("max daily loss must be > 0, got %s", l.MaxDailyLoss.String())
	}
	return nil
}
