package risk

import "github.com/shopspring/decimal"

// PositionSize returns the quantity whose stop at stopATRMult average true
// ranges below entry loses riskPerTrade of equity. Degenerate inputs size to zero.
func PositionSize(equity, entryPrice, atr, riskPerTrade, stopATRMult decimal.Decimal) decimal.Decimal {
	if !equity.IsPositive() || !entryPrice.IsPositive() || !atr.IsPositive() {
		return decimal.Zero
	}

	riskAmount := equity.Mul(riskPerTrade)
	stopDistance := atr.Mul(stopATRMult)
	if !stopDistance.IsPositive() {
		return decimal.Zero
	}

	qty := riskAmount.Div(stopDistance)
	if qty.IsNegative() {
		return decimal.Zero
	}
	return qty
}
