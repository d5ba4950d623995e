package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MaxEquityPoints bounds every equity history.
const MaxEquityPoints = 10_000

// EquityPoint total equity in quote currency at a moment in time.
type EquityPoint struct {
	Time   time.Time       `json:"timestamp"`
	Equity decimal.Decimal `json:"equity"`
}

// EquityCurve time-ascending, consecutively deduplicated equity history
// holding at most MaxEquityPoints points.
type EquityCurve struct {
	points []EquityPoint
}

// NewEquityCurve restores a curve from stored points, sorting them and keeping the newest tail.
func NewEquityCurve(points []EquityPoint) *EquityCurve {
	c := &EquityCurve{}
	sorted := make([]EquityPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	for _, p := range sorted {
		c.Append(p.Time, p.Equity)
	}
	return c
}

// Append records equity at t. The point is dropped when equity equals the last
// recorded value. A t earlier than the last point is clamped to keep the order.
// Returns true when a point was appended.
func (c *EquityCurve) Append(t time.Time, equity decimal.Decimal) bool {
	if n := len(c.points); n > 0 {
		last := c.points[n-1]
		if last.Equity.Equal(equity) {
			return false
		}
		if t.Before(last.Time) {
			t = last.Time
		}
	}

	c.points = append(c.points, EquityPoint{Time: t, Equity: equity})
	if overflow := len(c.points) - MaxEquityPoints; overflow > 0 {
		c.points = append(c.points[:0:0], c.points[overflow:]...)
	}
	return true
}

// Points returns a copy of the curve.
func (c *EquityCurve) Points() []EquityPoint {
	out := make([]EquityPoint, len(c.points))
	copy(out, c.points)
	return out
}

// Last returns the newest point.
func (c *EquityCurve) Last() (EquityPoint, bool) {
	if len(c.points) == 0 {
		return EquityPoint{}, false
	}
	return c.points[len(c.points)-1], true
}

// Len returns the number of points.
func (c *EquityCurve) Len() int {
	return len(c.points)
}
