package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpenPosition persisted view of a position.
type OpenPosition struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
}

// StatusSnapshot persisted bot status, overwritten every tick.
type StatusSnapshot struct {
	Timestamp     time.Time       `json:"timestamp"`
	Mode          Mode            `json:"mode"`
	Equity        decimal.Decimal `json:"equity"`
	Paused        bool            `json:"paused"`
	OpenPositions []OpenPosition  `json:"open_positions"`
	// Strategy active strategy; for an ensemble the member it delegated to last.
	Strategy string `json:"strategy,omitempty"`
}

// DefaultStatus is served when no status was persisted yet.
func DefaultStatus(mode Mode) StatusSnapshot {
	return StatusSnapshot{
		Mode:          mode,
		Equity:        decimal.Zero,
		OpenPositions: []OpenPosition{},
	}
}
