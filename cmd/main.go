// Command tradeit runs the crypto trading bot, its read-only API and the
// scheduled reports.
//
// Usage:
//
//	tradeit [run|paper|live|api|report|setup] [-config config.yaml]
//
// Secrets come from the environment (or a .env file):
//
//	BINANCE_API_KEY, BINANCE_API_SECRET, TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID,
//	DATABASE_URL, REDIS_URL
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tradeit/config"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/setup"
	"go.uber.org/zap"
)

func main() {
	flags, err := config.ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if flags.Command == config.CommandSetup {
		if err := setup.RunTUI(flags.Output); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	switch flags.Command {
	case config.CommandPaper:
		cfg.RequestedMode = string(domain.ModePaper)
	case config.CommandLive:
		cfg.RequestedMode = string(domain.ModeLive)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch flags.Command {
	case config.CommandAPI:
		err = runAPI(ctx, cfg, logger)
	case config.CommandReport:
		err = runReport(ctx, cfg, flags.ReportKind, logger)
	default:
		err = runBot(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("exited with error", zap.String("command", flags.Command), zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "incorrect 'log_level'")
	}
	zcfg.Level = lvl
	return zcfg.Build()
}
