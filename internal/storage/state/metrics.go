package state

import (
	"math"
	"time"

	"github.com/vadiminshakov/tradeit/internal/domain"
)

// EquityMetrics summarizes an equity series. Percent values are in percent units.
type EquityMetrics struct {
	Equity      float64 `json:"equity"`
	WTD         float64 `json:"wtd"`
	YTD         float64 `json:"ytd"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Sharpe      float64 `json:"sharpe"`
}

// ComputeMetrics derives week-to-date and year-to-date returns (anchored at the
// last point's Monday and January 1st), the maximum drawdown against the running
// peak and an unannualized Sharpe ratio of per-point returns.
func ComputeMetrics(points []domain.EquityPoint) EquityMetrics {
	if len(points) == 0 {
		return EquityMetrics{}
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Equity.InexactFloat64()
	}
	last := points[len(points)-1].Time.UTC()

	return EquityMetrics{
		Equity:      values[len(values)-1],
		WTD:         returnSince(points, values, weekStart(last)),
		YTD:         returnSince(points, values, yearStart(last)),
		MaxDrawdown: maxDrawdown(values),
		Sharpe:      sharpe(values),
	}
}

func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday is 0
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func yearStart(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

func returnSince(points []domain.EquityPoint, values []float64, from time.Time) float64 {
	first := -1
	for i, p := range points {
		if !p.Time.Before(from) {
			first = i
			break
		}
	}
	if first < 0 || values[first] == 0 {
		return 0
	}
	return (values[len(values)-1]/values[first] - 1.0) * 100.0
}

func maxDrawdown(values []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := v/peak - 1.0; dd < worst {
			worst = dd
		}
	}
	return worst * 100.0
}

// sharpe uses the sample standard deviation; fewer than two returns yield zero.
func sharpe(values []float64) float64 {
	returns := make([]float64, 0, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1.0)
	}
	n := len(returns)
	if n < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)

	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / float64(n-1))

	return mean / (std + 1e-9) * math.Sqrt(float64(n))
}
