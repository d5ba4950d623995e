package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Position an open long trade for one symbol.
type Position struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	EntryTime  time.Time       `json:"entry_time"`
}

// NewPosition constructs a position from a filled buy.
func NewPosition(symbol string, quantity, entryPrice decimal.Decimal, entryTime time.Time) (*Position, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("position quantity must be greater than zero")
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("entry price must be greater than zero")
	}

	return &Position{
		Symbol:     symbol,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		EntryTime:  entryTime,
	}, nil
}

// MarketValue returns quantity valued at price.
func (p *Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.Quantity.Mul(price)
}

// Open returns the persisted view of the position.
func (p *Position) Open() OpenPosition {
	return OpenPosition{Symbol: p.Symbol, Quantity: p.Quantity, EntryPrice: p.EntryPrice}
}

// PnL calculates profit and loss for the given market price.
func (p *Position) PnL(price decimal.Decimal) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return price.Sub(p.EntryPrice).Mul(p.Quantity)
}
