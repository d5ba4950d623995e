package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/internal/domain"
)

const envPrefix = "TRADEIT_"

// applyEnvOverrides overwrites settings whose variable is set and non-empty.
func applyEnvOverrides(cfg *Config) error {
	setStr(&cfg.BinanceAPIKey, "BINANCE_API_KEY")
	setStr(&cfg.BinanceAPISecret, "BINANCE_API_SECRET")
	setStr(&cfg.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	setStr(&cfg.TelegramChatID, "TELEGRAM_CHAT_ID")
	setStr(&cfg.DatabaseURL, "DATABASE_URL")
	setStr(&cfg.RedisURL, "REDIS_URL")

	setStr(&cfg.Strategy, envPrefix+"STRATEGY")
	setStr(&cfg.StatePath, envPrefix+"STATE_PATH")
	setStr(&cfg.APIAddr, envPrefix+"API_ADDR")
	setStr(&cfg.LogLevel, envPrefix+"LOG_LEVEL")
	setStr(&cfg.RequestedMode, envPrefix+"MODE")
	setStr(&cfg.DailyReportTime, envPrefix+"DAILY_REPORT_TIME")
	setStr(&cfg.WeeklyReportTime, envPrefix+"WEEKLY_REPORT_TIME")
	setStr(&cfg.ReportTimezone, envPrefix+"REPORT_TIMEZONE")
	setStringSlice(&cfg.Symbols, envPrefix+"SYMBOLS")
	if v := os.Getenv(envPrefix + "TIMEFRAME"); v != "" {
		cfg.Timeframe = domain.Timeframe(v)
	}

	steps := []func() error{
		func() error { return setBool(&cfg.BinanceTestnet, "BINANCE_TESTNET") },
		func() error { return setBool(&cfg.MLGateEntries, envPrefix+"ML_GATE_ENTRIES") },
		func() error { return setDecimal(&cfg.RiskPerTrade, envPrefix+"RISK_PER_TRADE") },
		func() error { return setDecimal(&cfg.StopATRMult, envPrefix+"STOP_ATR_MULT") },
		func() error { return setDecimal(&cfg.MaxTotalExposure, envPrefix+"MAX_TOTAL_EXPOSURE") },
		func() error { return setDecimal(&cfg.MaxDailyLoss, envPrefix+"MAX_DAILY_LOSS") },
		func() error { return setInt(&cfg.MaxConcurrentPositions, envPrefix+"MAX_CONCURRENT_POSITIONS") },
		func() error { return setInt(&cfg.HistoryLimit, envPrefix+"HISTORY_LIMIT") },
		func() error { return setInt64(&cfg.SlippageBps, envPrefix+"SLIPPAGE_BPS") },
		func() error { return setInt64(&cfg.TakerFeeBps, envPrefix+"TAKER_FEE_BPS") },
		func() error { return setFloat64(&cfg.MLProbabilityThreshold, envPrefix+"ML_PROBABILITY_THRESHOLD") },
		func() error { return setDuration(&cfg.PollInterval, envPrefix+"POLL_INTERVAL") },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func setBool(dst *bool, key string) error {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "env %s", key)
		}
		*dst = b
	}
	return nil
}

func setInt(dst *int, key string) error {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "env %s", key)
		}
		*dst = n
	}
	return nil
}

func setInt64(dst *int64, key string) error {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "env %s", key)
		}
		*dst = n
	}
	return nil
}

func setFloat64(dst *float64, key string) error {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "env %s", key)
		}
		*dst = f
	}
	return nil
}

func setDecimal(dst *decimal.Decimal, key string) error {
	if v := os.Getenv(key); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return errors.Wrapf(err, "env %s", key)
		}
		*dst = d
	}
	return nil
}

// setDuration accepts Go durations ("90s") or plain seconds ("90").
func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return errors.Wrapf(err, "env %s", key)
	}
	*dst = d
	return nil
}
