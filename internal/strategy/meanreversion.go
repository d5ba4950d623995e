package strategy

import (
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/pkg/indicators"
)

// MeanReversion buys oversold closes below the lower Bollinger band and exits
// on RSI recovery or a return to the middle band.
type MeanReversion struct {
	RSIEntry float64
	RSIExit  float64
}

// NewMeanReversion returns the strategy with its default thresholds.
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{RSIEntry: 30, RSIExit: 45}
}

// Name implements Strategy.
func (s *MeanReversion) Name() string { return NameMeanReversion }

// GenerateSignals implements Strategy.
func (s *MeanReversion) GenerateSignals(bars []domain.Bar) (Signals, error) {
	return generate(s, bars)
}

func (s *MeanReversion) fromFeatures(f *indicators.Features) Signals {
	sig := newSignals(f.Len())
	for i := range sig.Entries {
		sig.Entries[i] = f.RSI[i] < s.RSIEntry && f.Close[i] < f.BBLow[i]
		sig.Exits[i] = f.RSI[i] > s.RSIExit || f.Close[i] >= f.BBMid[i]
	}
	return sig
}
