// Package report builds the daily and weekly operator reports and sends them
// on a wall-clock schedule.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/storage/state"
	"go.uber.org/zap"
)

// Notification keys and their rate limit.
const (
	KeyDaily  = "daily_report"
	KeyWeekly = "weekly_report"

	minInterval = 60 * time.Second
)

// Quote last daily close of a symbol and its change against the previous day.
type Quote struct {
	Symbol    string
	Price     float64
	ChangePct float64
}

// BuildDaily formats the daily report.
func BuildDaily(date time.Time, quotes []Quote, m state.EquityMetrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Daily Report %s] ", date.Format("2006-01-02"))
	for _, q := range quotes {
		fmt.Fprintf(&b, "%s %.2f (%+.2f%%), ", q.Symbol, q.Price, q.ChangePct)
	}
	fmt.Fprintf(&b, "Equity %.2f, WTD %+.2f%%", m.Equity, m.WTD)
	return b.String()
}

// BuildWeekly formats the weekly report.
func BuildWeekly(date time.Time, m state.EquityMetrics, topStrategy string) string {
	return fmt.Sprintf("[Weekly Report %s] PnL %+.2f%% | MaxDD %.2f%% | TopStrat %s",
		date.Format("2006-01-02"), m.WTD, m.MaxDrawdown, topStrategy)
}

type barSource interface {
	Fetch(ctx context.Context, symbol string, timeframe domain.Timeframe, limit int) ([]domain.Bar, error)
}

type stateReader interface {
	ComputeEquityMetrics() (state.EquityMetrics, error)
	LoadStatus(defaultMode domain.Mode) domain.StatusSnapshot
}

type notifier interface {
	Notify(ctx context.Context, key, msg string, minInterval time.Duration) bool
}

// Reporter assembles reports from persisted state and market quotes.
type Reporter struct {
	state           stateReader
	quotes          barSource
	notifier        notifier
	symbols         []string
	defaultStrategy string
	mode            domain.Mode
	loc             *time.Location
	now             func() time.Time
	logger          *zap.Logger
}

// NewReporter creates a reporter. quotes may be nil to omit market prices.
func NewReporter(st stateReader, quotes barSource, n notifier, symbols []string, defaultStrategy string,
	mode domain.Mode, loc *time.Location, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{
		state:           st,
		quotes:          quotes,
		notifier:        n,
		symbols:         symbols,
		defaultStrategy: defaultStrategy,
		mode:            mode,
		loc:             loc,
		now:             time.Now,
		logger:          logger,
	}
}

// Daily builds the daily report.
func (r *Reporter) Daily(ctx context.Context) (string, error) {
	m, err := r.state.ComputeEquityMetrics()
	if err != nil {
		return "", err
	}
	return BuildDaily(r.now().In(r.loc), r.fetchQuotes(ctx), m), nil
}

// Weekly builds the weekly report.
func (r *Reporter) Weekly(context.Context) (string, error) {
	m, err := r.state.ComputeEquityMetrics()
	if err != nil {
		return "", err
	}

	top := r.state.LoadStatus(r.mode).Strategy
	if top == "" {
		top = r.defaultStrategy
	}
	return BuildWeekly(r.now().In(r.loc), m, top), nil
}

// SendDaily builds and sends the daily report.
func (r *Reporter) SendDaily(ctx context.Context) {
	r.send(ctx, KeyDaily, r.Daily)
}

// SendWeekly builds and sends the weekly report.
func (r *Reporter) SendWeekly(ctx context.Context) {
	r.send(ctx, KeyWeekly, r.Weekly)
}

func (r *Reporter) send(ctx context.Context, key string, build func(context.Context) (string, error)) {
	msg, err := build(ctx)
	if err != nil {
		r.logger.Warn("failed to build report", zap.String("key", key), zap.Error(err))
		return
	}
	r.notifier.Notify(ctx, key, msg, minInterval)
}

func (r *Reporter) fetchQuotes(ctx context.Context) []Quote {
	if r.quotes == nil {
		return nil
	}

	quotes := make([]Quote, 0, len(r.symbols))
	for _, symbol := range r.symbols {
		bars, err := r.quotes.Fetch(ctx, symbol, "1d", 2)
		if err != nil || len(bars) == 0 {
			r.logger.Debug("quote unavailable", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		last := bars[len(bars)-1].Close.InexactFloat64()
		q := Quote{Symbol: symbol, Price: last}
		if len(bars) > 1 {
			if prev := bars[len(bars)-2].Close.InexactFloat64(); prev > 0 {
				q.ChangePct = (last/prev - 1) * 100
			}
		}
		quotes = append(quotes, q)
	}
	return quotes
}
