// Package config loads bot settings from YAML, a .env file and the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"gopkg.in/yaml.v3"
)

// MinPollInterval floor applied to poll_interval.
const MinPollInterval = 10 * time.Second

const redacted = "***"

// Config resolved bot settings.
type Config struct {
	Symbols                []string                   `json:"symbols"`
	Timeframe              domain.Timeframe           `json:"timeframe"`
	Strategy               string                     `json:"strategy"`
	RiskPerTrade           decimal.Decimal            `json:"risk_per_trade"`
	StopATRMult            decimal.Decimal            `json:"stop_atr_mult"`
	MaxConcurrentPositions int                        `json:"max_concurrent_positions"`
	MaxTotalExposure       decimal.Decimal            `json:"max_total_exposure"`
	MaxDailyLoss           decimal.Decimal            `json:"max_daily_loss"`
	StatePath              string                     `json:"state_path"`
	PollInterval           time.Duration              `json:"poll_interval"`
	SlippageBps            int64                      `json:"slippage_bps"`
	TakerFeeBps            int64                      `json:"taker_fee_bps"`
	InitialBalance         map[string]decimal.Decimal `json:"initial_balance"`
	MLProbabilityThreshold float64                    `json:"ml_probability_threshold"`
	MLGateEntries          bool                       `json:"ml_gate_entries"`
	HistoryLimit           int                        `json:"history_limit"`
	APIAddr                string                     `json:"api_addr"`
	DailyReportTime        string                     `json:"daily_report_time"`
	WeeklyReportTime       string                     `json:"weekly_report_time"`
	ReportTimezone         string                     `json:"report_timezone"`
	LogLevel               string                     `json:"log_level"`
	// RequestedMode forces paper or live; empty resolves from credentials.
	RequestedMode  string `json:"requested_mode,omitempty"`
	BinanceTestnet bool   `json:"binance_testnet"`

	BinanceAPIKey    string `json:"-"`
	BinanceAPISecret string `json:"-"`
	TelegramBotToken string `json:"-"`
	TelegramChatID   string `json:"-"`
	DatabaseURL      string `json:"-"`
	// RedisURL mirrors status events over pub/sub when set.
	RedisURL string `json:"-"`
}

// FileConfig is the YAML layout. Decimal settings are strings so they keep
// their exact value; empty fields fall back to defaults.
type FileConfig struct {
	Symbols                []string          `yaml:"symbols,omitempty"`
	Timeframe              string            `yaml:"timeframe,omitempty"`
	Strategy               string            `yaml:"strategy,omitempty"`
	RiskPerTrade           string            `yaml:"risk_per_trade,omitempty"`
	StopATRMult            string            `yaml:"stop_atr_mult,omitempty"`
	MaxConcurrentPositions int               `yaml:"max_concurrent_positions,omitempty"`
	MaxTotalExposure       string            `yaml:"max_total_exposure,omitempty"`
	MaxDailyLoss           string            `yaml:"max_daily_loss,omitempty"`
	StatePath              string            `yaml:"state_path,omitempty"`
	PollInterval           time.Duration     `yaml:"poll_interval,omitempty"`
	SlippageBps            *int64            `yaml:"slippage_bps,omitempty"`
	TakerFeeBps            *int64            `yaml:"taker_fee_bps,omitempty"`
	InitialBalance         map[string]string `yaml:"initial_balance,omitempty"`
	MLProbabilityThreshold *float64          `yaml:"ml_probability_threshold,omitempty"`
	MLGateEntries          *bool             `yaml:"ml_gate_entries,omitempty"`
	HistoryLimit           int               `yaml:"history_limit,omitempty"`
	APIAddr                string            `yaml:"api_addr,omitempty"`
	DailyReportTime        string            `yaml:"daily_report_time,omitempty"`
	WeeklyReportTime       string            `yaml:"weekly_report_time,omitempty"`
	ReportTimezone         string            `yaml:"report_timezone,omitempty"`
	LogLevel               string            `yaml:"log_level,omitempty"`
	Mode                   string            `yaml:"mode,omitempty"`
	BinanceTestnet         *bool             `yaml:"binance_testnet,omitempty"`
	TelegramChatID         string            `yaml:"telegram_chat_id,omitempty"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Symbols:                []string{"BTC/USDT", "ETH/USDT"},
		Timeframe:              "1h",
		Strategy:               "momentum_rsi",
		RiskPerTrade:           decimal.RequireFromString("0.01"),
		StopATRMult:            decimal.NewFromInt(2),
		MaxConcurrentPositions: 3,
		MaxTotalExposure:       decimal.RequireFromString("0.8"),
		MaxDailyLoss:           decimal.RequireFromString("0.03"),
		StatePath:              "./data/state",
		PollInterval:           60 * time.Second,
		SlippageBps:            5,
		TakerFeeBps:            10,
		InitialBalance:         map[string]decimal.Decimal{"USDT": decimal.NewFromInt(10000)},
		MLProbabilityThreshold: 0.55,
		HistoryLimit:           500,
		APIAddr:                ":8000",
		DailyReportTime:        "08:00",
		WeeklyReportTime:       "18:00",
		ReportTimezone:         "UTC",
		LogLevel:               "info",
		BinanceTestnet:         true,
	}
}

// Load reads the YAML file at path (skipped when empty), loads .env when
// present and applies environment overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		var fc FileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
		if err := fc.apply(&cfg); err != nil {
			return nil, errors.Wrapf(err, "config %s", path)
		}
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, errors.Wrap(err, "load .env")
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.normalize()

	return &cfg, nil
}

func (fc FileConfig) apply(cfg *Config) error {
	if len(fc.Symbols) > 0 {
		cfg.Symbols = fc.Symbols
	}
	if fc.Timeframe != "" {
		cfg.Timeframe = domain.Timeframe(fc.Timeframe)
	}
	if fc.Strategy != "" {
		cfg.Strategy = fc.Strategy
	}

	decimals := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"risk_per_trade", fc.RiskPerTrade, &cfg.RiskPerTrade},
		{"stop_atr_mult", fc.StopATRMult, &cfg.StopATRMult},
		{"max_total_exposure", fc.MaxTotalExposure, &cfg.MaxTotalExposure},
		{"max_daily_loss", fc.MaxDailyLoss, &cfg.MaxDailyLoss},
	}
	for _, d := range decimals {
		if d.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(d.raw)
		if err != nil {
			return errors.Wrapf(err, "incorrect '%s' param (must be a decimal)", d.name)
		}
		*d.dst = v
	}

	if len(fc.InitialBalance) > 0 {
		balances := make(map[string]decimal.Decimal, len(fc.InitialBalance))
		for asset, raw := range fc.InitialBalance {
			v, err := decimal.NewFromString(raw)
			if err != nil {
				return errors.Wrapf(err, "incorrect 'initial_balance.%s' param (must be a decimal)", asset)
			}
			balances[strings.ToUpper(asset)] = v
		}
		cfg.InitialBalance = balances
	}

	if fc.MaxConcurrentPositions != 0 {
		cfg.MaxConcurrentPositions = fc.MaxConcurrentPositions
	}
	if fc.StatePath != "" {
		cfg.StatePath = fc.StatePath
	}
	if fc.PollInterval != 0 {
		cfg.PollInterval = fc.PollInterval
	}
	if fc.SlippageBps != nil {
		cfg.SlippageBps = *fc.SlippageBps
	}
	if fc.TakerFeeBps != nil {
		cfg.TakerFeeBps = *fc.TakerFeeBps
	}
	if fc.MLProbabilityThreshold != nil {
		cfg.MLProbabilityThreshold = *fc.MLProbabilityThreshold
	}
	if fc.MLGateEntries != nil {
		cfg.MLGateEntries = *fc.MLGateEntries
	}
	if fc.HistoryLimit != 0 {
		cfg.HistoryLimit = fc.HistoryLimit
	}
	if fc.APIAddr != "" {
		cfg.APIAddr = fc.APIAddr
	}
	if fc.DailyReportTime != "" {
		cfg.DailyReportTime = fc.DailyReportTime
	}
	if fc.WeeklyReportTime != "" {
		cfg.WeeklyReportTime = fc.WeeklyReportTime
	}
	if fc.ReportTimezone != "" {
		cfg.ReportTimezone = fc.ReportTimezone
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.Mode != "" {
		cfg.RequestedMode = fc.Mode
	}
	if fc.BinanceTestnet != nil {
		cfg.BinanceTestnet = *fc.BinanceTestnet
	}
	if fc.TelegramChatID != "" {
		cfg.TelegramChatID = fc.TelegramChatID
	}
	return nil
}

func (c *Config) normalize() {
	if c.PollInterval < MinPollInterval {
		c.PollInterval = MinPollInterval
	}
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	c.Timeframe = domain.Timeframe(strings.ToLower(strings.TrimSpace(string(c.Timeframe))))
	c.RequestedMode = strings.ToLower(strings.TrimSpace(c.RequestedMode))
}

// Mode resolves the execution mode. An explicit mode wins; otherwise live
// requires an API key with testnet off.
func (c *Config) Mode() domain.Mode {
	switch domain.Mode(c.RequestedMode) {
	case domain.ModeLive:
		return domain.ModeLive
	case domain.ModePaper:
		return domain.ModePaper
	}
	return domain.ResolveMode(c.BinanceAPIKey, c.BinanceTestnet)
}

// RiskLimits returns the portfolio limits.
func (c *Config) RiskLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxConcurrent: c.MaxConcurrentPositions,
		MaxExposure:   c.MaxTotalExposure,
		MaxDailyLoss:  c.MaxDailyLoss,
	}
}

// Location returns the report time zone, UTC when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.ReportTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, errors.Wrapf(err, "incorrect 'report_timezone' %q", c.ReportTimezone)
	}
	return loc, nil
}

// Redacted returns the settings for display with secrets masked.
func (c *Config) Redacted() map[string]any {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}

	balances := make(map[string]string, len(c.InitialBalance))
	for asset, v := range c.InitialBalance {
		balances[asset] = v.String()
	}

	return map[string]any{
		"symbols":                  c.Symbols,
		"timeframe":                c.Timeframe.String(),
		"strategy":                 c.Strategy,
		"mode":                     string(c.Mode()),
		"risk_per_trade":           c.RiskPerTrade.String(),
		"stop_atr_mult":            c.StopATRMult.String(),
		"max_concurrent_positions": c.MaxConcurrentPositions,
		"max_total_exposure":       c.MaxTotalExposure.String(),
		"max_daily_loss":           c.MaxDailyLoss.String(),
		"state_path":               c.StatePath,
		"poll_interval_seconds":    int64(c.PollInterval / time.Second),
		"slippage_bps":             c.SlippageBps,
		"taker_fee_bps":            c.TakerFeeBps,
		"initial_balance":          balances,
		"ml_probability_threshold": c.MLProbabilityThreshold,
		"ml_gate_entries":          c.MLGateEntries,
		"history_limit":            c.HistoryLimit,
		"api_addr":                 c.APIAddr,
		"daily_report_time":        c.DailyReportTime,
		"weekly_report_time":       c.WeeklyReportTime,
		"report_timezone":          c.ReportTimezone,
		"binance_testnet":          c.BinanceTestnet,
		"binance_api_key":          mask(c.BinanceAPIKey),
		"binance_api_secret":       mask(c.BinanceAPISecret),
		"telegram_bot_token":       mask(c.TelegramBotToken),
		"telegram_chat_id":         mask(c.TelegramChatID),
		"db_url":                   mask(c.DatabaseURL),
		"redis_url":                mask(c.RedisURL),
	}
}

// Save writes fc as YAML to path.
func Save(path string, fc FileConfig) error {
	data, err := yaml.Marshal(fc)
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "failed to save config file %s", path)
	}
	return nil
}
