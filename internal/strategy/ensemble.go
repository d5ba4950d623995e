package strategy

import (
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/pkg/indicators"
)

const defaultEnsembleLookback = 24

// Ensemble delegates to whichever member had the best recent return on the
// given bars. Each member's equity is simulated from its own signals, so the
// choice depends on the bars alone.
type Ensemble struct {
	members  []featureStrategy
	fallback string
	lookback int
}

// NewEnsemble returns an ensemble over the three base strategies that falls
// back to momentum_rsi when no member has a positive recent return.
func NewEnsemble() *Ensemble {
	return &Ensemble{
		members:  []featureStrategy{NewMomentumRSI(), NewMeanReversion(), NewBreakoutATR()},
		fallback: NameMomentumRSI,
		lookback: defaultEnsembleLookback,
	}
}

// Name implements Strategy.
func (e *Ensemble) Name() string { return NameEnsemble }

// GenerateSignals implements Strategy.
func (e *Ensemble) GenerateSignals(bars []domain.Bar) (Signals, error) {
	f, err := indicators.Compute(bars)
	if err != nil {
		return Signals{}, err
	}
	_, sig := e.choose(f)
	return sig, nil
}

// Selected reports the member the ensemble delegates to for these bars.
func (e *Ensemble) Selected(bars []domain.Bar) (string, error) {
	f, err := indicators.Compute(bars)
	if err != nil {
		return "", err
	}
	name, _ := e.choose(f)
	return name, nil
}

func (e *Ensemble) choose(f *indicators.Features) (string, Signals) {
	var (
		bestName   string
		bestSig    Signals
		bestReturn float64
		fallback   Signals
	)

	for i, m := range e.members {
		sig := m.fromFeatures(f)
		if m.Name() == e.fallback {
			fallback = sig
		}

		ret := recentReturn(simulateEquity(f.Close, sig), e.lookback)
		// strict comparison keeps the earlier member on ties
		if i == 0 || ret > bestReturn {
			bestName, bestSig, bestReturn = m.Name(), sig, ret
		}
	}

	if bestReturn <= 0 {
		return e.fallback, fallback
	}
	return bestName, bestSig
}

// simulateEquity replays long-only signals over closes starting from 1.
// A position opened on bar t earns the close-to-close move from t+1 on.
func simulateEquity(closes []float64, sig Signals) []float64 {
	equity := make([]float64, len(closes))
	if len(closes) == 0 {
		return equity
	}

	value := 1.0
	inPosition := false
	equity[0] = value
	if sig.Entries[0] {
		inPosition = true
	}

	for t := 1; t < len(closes); t++ {
		if inPosition && closes[t-1] > 0 {
			value *= closes[t] / closes[t-1]
		}
		equity[t] = value

		switch {
		case inPosition && sig.Exits[t]:
			inPosition = false
		case !inPosition && sig.Entries[t]:
			inPosition = true
		}
	}
	return equity
}

func recentReturn(equity []float64, lookback int) float64 {
	if len(equity) < 2 {
		return 0
	}
	start := len(equity) - lookback
	if start < 0 {
		start = 0
	}
	first := equity[start]
	if first == 0 {
		return 0
	}
	return equity[len(equity)-1]/first - 1
}
