package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidTimeframe is returned for intervals the exchange does not serve.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

// Timeframe candle interval in exchange notation, e.g. "1h".
type Timeframe string

var timeframeDurations = map[Timeframe]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// ParseTimeframe validates an interval string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := timeframeDurations[tf]; !ok {
		return "", errors.Wrapf(ErrInvalidTimeframe, "%q", s)
	}
	return tf, nil
}

// Duration returns the length of one bar.
func (t Timeframe) Duration() time.Duration {
	return timeframeDurations[t]
}

// String returns the exchange notation.
func (t Timeframe) String() string {
	return string(t)
}
