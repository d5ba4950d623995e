// Package metrics exposes trading loop counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Order outcomes.
const (
	OutcomeFilled   = "filled"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds the bot collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ticks         prometheus.Counter
	orders        *prometheus.CounterVec
	symbolErrors  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	equity        prometheus.Gauge
	openPositions prometheus.Gauge
	paused        prometheus.Gauge
	dailyLoss     prometheus.Gauge
	tickDuration  prometheus.Histogram
}

// New registers the bot collectors plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_ticks_total", Help: "Completed loop iterations",
		}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_orders_total", Help: "Orders by mode, side and outcome",
		}, []string{"mode", "side", "outcome"}),
		symbolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_symbol_errors_total", Help: "Per-symbol failures skipped by the loop",
		}, []string{"symbol", "stage"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_notifications_total", Help: "Notifications dispatched by key",
		}, []string{"key"}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_equity", Help: "Marked-to-market equity in quote currency",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_open_positions", Help: "Currently open positions",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_paused", Help: "1 when entries are paused by the daily loss limit",
		}),
		dailyLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_daily_pnl_percent", Help: "Equity change since the first snapshot of the UTC day",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "bot_tick_duration_seconds", Help: "Loop iteration latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	m.registry.MustRegister(
		m.ticks, m.orders, m.symbolErrors, m.notifications,
		m.equity, m.openPositions, m.paused, m.dailyLoss, m.tickDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTick records one completed iteration.
func (m *Metrics) ObserveTick(seconds float64) {
	m.ticks.Inc()
	m.tickDuration.Observe(seconds)
}

// ObserveOrder counts an order attempt.
func (m *Metrics) ObserveOrder(mode, side, outcome string) {
	m.orders.WithLabelValues(mode, side, outcome).Inc()
}

// ObserveSymbolError counts a skipped symbol.
func (m *Metrics) ObserveSymbolError(symbol, stage string) {
	m.symbolErrors.WithLabelValues(symbol, stage).Inc()
}

// ObserveNotification counts a dispatched notification.
func (m *Metrics) ObserveNotification(key string) {
	m.notifications.WithLabelValues(key).Inc()
}

// SetPortfolio updates the portfolio gauges.
func (m *Metrics) SetPortfolio(equity float64, openPositions int, paused bool, dailyPct float64) {
	m.equity.Set(equity)
	m.openPositions.Set(float64(openPositions))
	if paused {
		m.paused.Set(1)
	} else {
		m.paused.Set(0)
	}
	m.dailyLoss.Set(dailyPct)
}
