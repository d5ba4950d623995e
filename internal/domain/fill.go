package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Fill realized outcome of an order execution.
type Fill struct {
	// Price is the realized price after slippage.
	Price decimal.Decimal
	// Fee charged in quote currency.
	Fee decimal.Decimal
	// Quantity filled in base currency.
	Quantity decimal.Decimal
}

// FillRecord normalized record produced by the order router for every successful order.
type FillRecord struct {
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Amount        decimal.Decimal `json:"amount"`
	Price         decimal.Decimal `json:"price"`
	Fee           decimal.Decimal `json:"fee"`
	Equity        decimal.Decimal `json:"equity"`
	Mode          Mode            `json:"mode"`
	Timestamp     time.Time       `json:"timestamp"`
	// Raw is the exchange's native response for live fills.
	Raw map[string]any `json:"-"`
}

// Notional returns amount × price.
func (r FillRecord) Notional() decimal.Decimal {
	return r.Amount.Mul(r.Price)
}

// String returns a human-readable string representation.
func (r FillRecord) String() string {
	return fmt.Sprintf("%s %s amount: %s price: %s fee: %s", r.Symbol, r.Side, r.Amount.String(), r.Price.String(), r.Fee.String())
}
