package strategy

import (
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/pkg/indicators"
)

// BreakoutATR enters when the close clears the previous bar's rolling high plus
// an ATR buffer and exits below the previous bar's ATR trailing stop.
type BreakoutATR struct {
	Lookback int
	ATRMult  float64
}

// NewBreakoutATR returns the strategy with lookback 20 and a 1.5 ATR buffer.
func NewBreakoutATR() *BreakoutATR {
	return &BreakoutATR{Lookback: 20, ATRMult: 1.5}
}

// Name implements Strategy.
func (s *BreakoutATR) Name() string { return NameBreakoutATR }

// GenerateSignals implements Strategy.
func (s *BreakoutATR) GenerateSignals(bars []domain.Bar) (Signals, error) {
	return generate(s, bars)
}

func (s *BreakoutATR) fromFeatures(f *indicators.Features) Signals {
	n := f.Len()
	rollingHigh := rollingMaxMinPeriods(f.Close, s.Lookback)

	trigger := make([]float64, n)
	stop := make([]float64, n)
	for i := 0; i < n; i++ {
		trigger[i] = rollingHigh[i] + f.ATR[i]*s.ATRMult
		stop[i] = f.Close[i] - f.ATR[i]*s.ATRMult
	}
	trigger = indicators.Shift(trigger)
	stop = indicators.Shift(stop)

	sig := newSignals(n)
	for i := 0; i < n; i++ {
		sig.Entries[i] = f.Close[i] > trigger[i]
		sig.Exits[i] = f.Close[i] < stop[i]
	}
	return sig
}

// rollingMaxMinPeriods is a rolling maximum that starts from the first bar
// with a shorter window instead of waiting for a full one.
func rollingMaxMinPeriods(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		m := values[start]
		for _, v := range values[start : i+1] {
			if v > m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}
