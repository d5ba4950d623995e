package strategy

import (
	"math"

	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/pkg/indicators"
)

// MomentumRSI goes long in an SMA50 > SMA200 uptrend with RSI confirmation and
// calm volatility. Signals act on the bar after the condition.
type MomentumRSI struct {
	RSIEntry     float64
	RSIExit      float64
	VolThreshold float64
}

// NewMomentumRSI returns the strategy with its default thresholds.
func NewMomentumRSI() *MomentumRSI {
	return &MomentumRSI{RSIEntry: 55, RSIExit: 50, VolThreshold: 0.02}
}

// Name implements Strategy.
func (s *MomentumRSI) Name() string { return NameMomentumRSI }

// GenerateSignals implements Strategy.
func (s *MomentumRSI) GenerateSignals(bars []domain.Bar) (Signals, error) {
	return generate(s, bars)
}

func (s *MomentumRSI) fromFeatures(f *indicators.Features) Signals {
	n := f.Len()
	long := make([]bool, n)
	exit := make([]bool, n)

	for i := 0; i < n; i++ {
		ratio := f.ATR[i] / f.Close[i]
		if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
			ratio = 0
		}
		calm := ratio < s.VolThreshold

		long[i] = f.SMA50[i] > f.SMA200[i] && f.RSI[i] > s.RSIEntry && calm
		exit[i] = f.RSI[i] < s.RSIExit || f.SMA50[i] < f.SMA200[i]
	}

	return Signals{Entries: shiftBools(long), Exits: shiftBools(exit)}
}
