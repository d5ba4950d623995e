// Package domain defines core data structures used throughout the trading bot.
package domain

import (
	"strings"

	"github.com/pkg/errors"
)

// Pair cryptocurrency trading pair.
type Pair struct {
	// Base currency symbol.
	Base string
	// Quote currency symbol.
	Quote string
}

// ParsePair parses a symbol in BASE/QUOTE form.
func ParsePair(symbol string) (Pair, error) {
	parts := strings.Split(strings.TrimSpace(symbol), "/")
	if len(parts) != 2 {
		return Pair{}, errors.Wrapf(ErrInvalidSymbol, "%q", symbol)
	}

	base := strings.ToUpper(strings.TrimSpace(parts[0]))
	quote := strings.ToUpper(strings.TrimSpace(parts[1]))
	if base == "" || quote == "" {
		return Pair{}, errors.Wrapf(ErrInvalidSymbol, "%q", symbol)
	}

	return Pair{Base: base, Quote: quote}, nil
}

// MustParsePair is ParsePair for constants and tests.
func MustParsePair(symbol string) Pair {
	p, err := ParsePair(symbol)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the BASE/QUOTE representation.
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Symbol returns the concatenated exchange symbol, e.g. BTCUSDT.
func (p Pair) Symbol() string {
	return p.Base + p.Quote
}
