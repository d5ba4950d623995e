package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/tradeit/config"
	"github.com/vadiminshakov/tradeit/internal/bot"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/events"
	"github.com/vadiminshakov/tradeit/internal/execution"
	"github.com/vadiminshakov/tradeit/internal/marketdata"
	"github.com/vadiminshakov/tradeit/internal/metrics"
	"github.com/vadiminshakov/tradeit/internal/ml"
	"github.com/vadiminshakov/tradeit/internal/notify"
	"github.com/vadiminshakov/tradeit/internal/report"
	"github.com/vadiminshakov/tradeit/internal/risk"
	"github.com/vadiminshakov/tradeit/internal/storage/candles"
	"github.com/vadiminshakov/tradeit/internal/storage/journal"
	"github.com/vadiminshakov/tradeit/internal/storage/simstate"
	"github.com/vadiminshakov/tradeit/internal/storage/state"
	"github.com/vadiminshakov/tradeit/internal/strategy"
	"github.com/vadiminshakov/tradeit/internal/wallet"
	"github.com/vadiminshakov/tradeit/internal/web"
	"github.com/vadiminshakov/tradeit/pkg/indicators"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const walDirName = "wal"

// runBot wires the loop, the API server, the report scheduler and the optional
// Redis forwarder, and runs them until ctx is cancelled or one of them fails.
func runBot(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	mode := cfg.Mode()
	logger = logger.With(zap.String("mode", string(mode)))

	store, err := state.NewStore(cfg.StatePath, logger)
	if err != nil {
		return err
	}

	var (
		execClient execution.ExecutionClient
		native     *binance.Client
		live       *execution.BinanceClient
	)
	walletOpts := []wallet.Option{
		wallet.WithFeeBps(cfg.TakerFeeBps),
		wallet.WithSlippageBps(cfg.SlippageBps),
	}
	if mode == domain.ModeLive {
		live = execution.NewBinanceClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.BinanceTestnet, logger)
		execClient = live
		native = live.Native()
	} else {
		walletState, err := simstate.NewStore(cfg.StatePath)
		if err != nil {
			return err
		}
		walletOpts = append(walletOpts, wallet.WithStateStore(walletState))
		native = binance.NewClient("", "")
	}

	w, err := wallet.New(cfg.InitialBalance, logger, walletOpts...)
	if err != nil {
		return err
	}
	if live != nil {
		balances, err := live.Balances(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch exchange balances")
		}
		w.SyncBalances(balances)
	}

	source, closeSource, err := newSource(ctx, cfg, native, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	wal, err := journal.NewWALStore(filepath.Join(cfg.StatePath, walDirName), logger)
	if err != nil {
		return err
	}
	defer wal.Close()
	botState, pending := wal.Restore()
	for _, intent := range pending {
		logger.Warn("order intent was interrupted, check the exchange before trading",
			zap.String("id", intent.ID),
			zap.String("symbol", intent.Symbol),
			zap.String("side", intent.Side.String()),
			zap.String("quantity", intent.Quantity.String()),
			zap.Time("time", intent.Time))
	}

	router, err := execution.NewRouter(mode, w, execClient, logger,
		execution.WithJournal(wal),
		execution.WithFillCallback(func(record domain.FillRecord) {
			if err := store.AppendTrade(record); err != nil {
				logger.Warn("failed to append trade", zap.Error(err))
			}
		}))
	if err != nil {
		return err
	}

	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		return err
	}
	equity, err := store.LoadEquity()
	if err != nil {
		logger.Warn("failed to load equity history, starting fresh", zap.Error(err))
	}

	notifier := notify.New(logger, notify.Senders(cfg.TelegramBotToken, cfg.TelegramChatID))
	promMetrics := metrics.New()
	broadcaster := events.NewStatusBroadcaster(0)

	loop, err := bot.New(bot.Settings{
		Symbols:       cfg.Symbols,
		Timeframe:     cfg.Timeframe,
		HistoryLimit:  cfg.HistoryLimit,
		PollInterval:  cfg.PollInterval,
		RiskPerTrade:  cfg.RiskPerTrade,
		StopATRMult:   cfg.StopATRMult,
		MLGateEntries: cfg.MLGateEntries,
	}, bot.Deps{
		Source:      source,
		Strategy:    strat,
		Router:      router,
		Wallet:      w,
		Limiter:     risk.NewLimiter(cfg.RiskLimits(), nil),
		Notifier:    notifier,
		Store:       store,
		Journal:     wal,
		Model:       ml.New(len(indicators.ModelFeatureNames), cfg.MLProbabilityThreshold),
		Broadcaster: broadcaster,
		Metrics:     promMetrics,
		Equity:      equity,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	loop.Restore(botState)

	scheduler, err := newScheduler(cfg, store, source, notifier, logger)
	if err != nil {
		return err
	}
	server := web.NewServer(cfg.APIAddr, store, cfg.Redacted(), mode, broadcaster, promMetrics.Handler(), logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(ctx) })
	g.Go(func() error { return server.Start(ctx) })
	g.Go(func() error { return scheduler.Run(ctx) })

	if cfg.RedisURL != "" {
		bus, err := events.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, status events stay local", zap.Error(err))
		} else {
			defer bus.Close()
			g.Go(func() error { return events.Forward(ctx, broadcaster, bus, logger) })
		}
	}

	return g.Wait()
}

// runAPI serves the API from the state files of a loop running elsewhere.
// With a Redis URL the live status stream is relayed from that loop.
func runAPI(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := state.NewStore(cfg.StatePath, logger)
	if err != nil {
		return err
	}
	broadcaster := events.NewStatusBroadcaster(0)
	server := web.NewServer(cfg.APIAddr, store, cfg.Redacted(), cfg.Mode(), broadcaster, metrics.New().Handler(), logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx) })

	if cfg.RedisURL != "" {
		bus, err := events.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer bus.Close()
		g.Go(func() error { return events.Relay(ctx, bus, broadcaster, logger) })
	}

	return g.Wait()
}

// runReport builds one report, prints it and sends it through the notifier.
func runReport(ctx context.Context, cfg *config.Config, kind string, logger *zap.Logger) error {
	store, err := state.NewStore(cfg.StatePath, logger)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	notifier := notify.New(logger, notify.Senders(cfg.TelegramBotToken, cfg.TelegramChatID))
	source := marketdata.NewBinanceSource(binance.NewClient("", ""), logger)
	reporter := report.NewReporter(store, source, notifier, cfg.Symbols, cfg.Strategy, cfg.Mode(), loc, logger)

	build, send := reporter.Daily, reporter.SendDaily
	if kind == "weekly" {
		build, send = reporter.Weekly, reporter.SendWeekly
	}

	msg, err := build(ctx)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	send(ctx)
	return nil
}

// newSource returns the Binance kline source, archived to Postgres when a
// database URL is configured. An unreachable database only disables archiving.
func newSource(ctx context.Context, cfg *config.Config, native *binance.Client, logger *zap.Logger) (marketdata.Source, func(), error) {
	var source marketdata.Source = marketdata.NewBinanceSource(native, logger)
	if cfg.DatabaseURL == "" {
		return source, func() {}, nil
	}

	candleStore, err := candles.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("candle archive unavailable", zap.Error(err))
		return source, func() {}, nil
	}
	return marketdata.NewArchivingSource(source, candleStore, logger), candleStore.Close, nil
}

func newScheduler(cfg *config.Config, store *state.Store, source marketdata.Source, n *notify.Notifier, logger *zap.Logger) (*report.Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	dailyAt, err := config.ParseClock(cfg.DailyReportTime)
	if err != nil {
		return nil, errors.Wrap(err, "incorrect 'daily_report_time'")
	}
	weeklyAt, err := config.ParseClock(cfg.WeeklyReportTime)
	if err != nil {
		return nil, errors.Wrap(err, "incorrect 'weekly_report_time'")
	}

	reporter := report.NewReporter(store, source, n, cfg.Symbols, cfg.Strategy, cfg.Mode(), loc, logger)
	return report.NewScheduler(reporter, dailyAt, weeklyAt, loc, logger), nil
}
