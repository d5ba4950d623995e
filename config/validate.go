package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/strategy"
)

// ErrMissingCredentials live mode was requested without Binance keys.
var ErrMissingCredentials = errors.New("live mode requires BINANCE_API_KEY and BINANCE_API_SECRET")

// Validate checks settings that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("at least one symbol is required")
	}
	for _, s := range c.Symbols {
		if _, err := domain.ParsePair(s); err != nil {
			return err
		}
	}
	if _, err := domain.ParseTimeframe(string(c.Timeframe)); err != nil {
		return err
	}
	if !knownStrategy(c.Strategy) {
		return errors.Errorf("unknown strategy %q", c.Strategy)
	}
	if err := c.RiskLimits().Validate(); err != nil {
		return err
	}
	if !c.RiskPerTrade.IsPositive() {
		return errors.Errorf("risk_per_trade must be > 0, got %s", c.RiskPerTrade.String())
	}
	if !c.StopATRMult.IsPositive() {
		return errors.Errorf("stop_atr_mult must be > 0, got %s", c.StopATRMult.String())
	}
	if c.SlippageBps < 0 || c.TakerFeeBps < 0 {
		return errors.New("slippage_bps and taker_fee_bps must be >= 0")
	}
	for asset, v := range c.InitialBalance {
		if v.IsNegative() {
			return errors.Errorf("initial balance for %s is negative", asset)
		}
	}
	if c.MLProbabilityThreshold <= 0 || c.MLProbabilityThreshold >= 1 {
		return errors.Errorf("ml_probability_threshold must be in (0, 1), got %v", c.MLProbabilityThreshold)
	}
	if c.HistoryLimit < 1 {
		return errors.Errorf("history_limit must be >= 1, got %d", c.HistoryLimit)
	}
	for name, v := range map[string]string{"daily_report_time": c.DailyReportTime, "weekly_report_time": c.WeeklyReportTime} {
		if _, err := ParseClock(v); err != nil {
			return errors.Wrapf(err, "incorrect '%s'", name)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.RequestedMode {
	case "", string(domain.ModePaper), string(domain.ModeLive):
	default:
		return errors.Errorf("unknown mode %q", c.RequestedMode)
	}
	if c.Mode() == domain.ModeLive && (c.BinanceAPIKey == "" || c.BinanceAPISecret == "") {
		return ErrMissingCredentials
	}
	return nil
}

// ParseClock parses an HH:MM wall-clock time into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.Errorf("expected HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func knownStrategy(name string) bool {
	for _, n := range strategy.Names() {
		if n == name {
			return true
		}
	}
	return false
}
