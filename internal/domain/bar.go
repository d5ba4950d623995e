package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar one OHLCV candle for a symbol and timeframe.
type Bar struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime time.Time
}

// LastClose returns the close of the latest bar, zero when bars is empty.
func LastClose(bars []Bar) decimal.Decimal {
	if len(bars) == 0 {
		return decimal.Zero
	}
	return bars[len(bars)-1].Close
}
