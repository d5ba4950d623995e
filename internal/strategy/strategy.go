// Package strategy turns bars into per-bar entry and exit flags.
// Strategies are pure: the same bars always produce the same signals.
package strategy

import (
	"github.com/pkg/errors"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/pkg/indicators"
)

// Strategy names accepted by New.
const (
	NameMomentumRSI   = "momentum_rsi"
	NameMeanReversion = "mean_reversion"
	NameBreakoutATR   = "breakout_atr"
	NameEnsemble      = "ensemble"
)

// ErrUnknownStrategy is returned by New for unsupported names.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Signals entry and exit flags aligned index by index with the input bars.
type Signals struct {
	Entries []bool
	Exits   []bool
}

// Last returns the flags of the newest bar.
func (s Signals) Last() (entry, exit bool) {
	if n := len(s.Entries); n > 0 {
		entry = s.Entries[n-1]
	}
	if n := len(s.Exits); n > 0 {
		exit = s.Exits[n-1]
	}
	return entry, exit
}

// Strategy generates signals over the full bar window.
type Strategy interface {
	Name() string
	GenerateSignals(bars []domain.Bar) (Signals, error)
}

// featureStrategy computes signals from precomputed features so the
// ensemble can share one feature pass across members.
type featureStrategy interface {
	Strategy
	fromFeatures(f *indicators.Features) Signals
}

// New returns the strategy registered under name.
func New(name string) (Strategy, error) {
	switch name {
	case NameMomentumRSI:
		return NewMomentumRSI(), nil
	case NameMeanReversion:
		return NewMeanReversion(), nil
	case NameBreakoutATR:
		return NewBreakoutATR(), nil
	case NameEnsemble:
		return NewEnsemble(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownStrategy, "%q", name)
	}
}

// Names lists every supported strategy.
func Names() []string {
	return []string{NameMomentumRSI, NameMeanReversion, NameBreakoutATR, NameEnsemble}
}

func generate(s featureStrategy, bars []domain.Bar) (Signals, error) {
	f, err := indicators.Compute(bars)
	if err != nil {
		return Signals{}, err
	}
	return s.fromFeatures(f), nil
}

func newSignals(n int) Signals {
	return Signals{Entries: make([]bool, n), Exits: make([]bool, n)}
}

// shiftBools delays flags by one bar; the first bar is false.
func shiftBools(v []bool) []bool {
	out := make([]bool, len(v))
	if len(v) > 1 {
		copy(out[1:], v[:len(v)-1])
	}
	return out
}
