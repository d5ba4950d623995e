// Package indicators computes the technical features strategies and the online model consume.
// Every series is right-aligned with its bars: index i describes bar i and warmup slots are NaN.
package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/internal/domain"
)

const (
	RSIPeriod        = 14
	ATRPeriod        = 14
	BollingerPeriod  = 20
	BollingerStdDevs = 2.0
	ROCPeriod        = 12
	VolatilityPeriod = 20
)

// ModelFeatureNames lists the columns of Features.Row in order.
var ModelFeatureNames = []string{"sma_10", "sma_50", "sma_200", "rsi", "atr", "roc", "volatility"}

// Features per-bar indicator series.
type Features struct {
	Close      []float64
	High       []float64
	Low        []float64
	SMA10      []float64
	SMA50      []float64
	SMA200     []float64
	RSI        []float64
	ATR        []float64
	BBLow      []float64
	BBMid      []float64
	BBHigh     []float64
	ROC        []float64
	Volatility []float64
}

// Compute derives all features for bars.
func Compute(bars []domain.Bar) (*Features, error) {
	if len(bars) == 0 {
		return nil, errors.Wrap(domain.ErrDataUnavailable, "no bars to compute features")
	}

	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close.InexactFloat64()
		highs[i] = b.High.InexactFloat64()
		lows[i] = b.Low.InexactFloat64()
	}

	f := &Features{
		Close:      closes,
		High:       highs,
		Low:        lows,
		SMA10:      SMA(closes, 10),
		SMA50:      SMA(closes, 50),
		SMA200:     SMA(closes, 200),
		RSI:        RSI(closes, RSIPeriod),
		ATR:        ATR(highs, lows, closes, ATRPeriod),
		ROC:        ROC(closes, ROCPeriod),
		Volatility: RollingStd(closes, VolatilityPeriod, 1),
	}
	f.BBLow, f.BBMid, f.BBHigh = Bollinger(closes, BollingerPeriod, BollingerStdDevs)

	return f, nil
}

// Len returns the number of bars.
func (f *Features) Len() int {
	return len(f.Close)
}

// Row returns the model feature vector of bar i in ModelFeatureNames order.
func (f *Features) Row(i int) []float64 {
	return []float64{f.SMA10[i], f.SMA50[i], f.SMA200[i], f.RSI[i], f.ATR[i], f.ROC[i], f.Volatility[i]}
}

// LastATR returns the latest ATR as a decimal, zero during warmup.
func (f *Features) LastATR() decimal.Decimal {
	if f.Len() == 0 {
		return decimal.Zero
	}
	v := f.ATR[f.Len()-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// FeatureLabels returns model rows with labels "next close is higher".
// The last bar has no label and is dropped; rows with NaN features are skipped.
// times[i] is the open time of the bar behind rows[i].
func FeatureLabels(bars []domain.Bar) (rows [][]float64, labels []int, times []int64, err error) {
	f, err := Compute(bars)
	if err != nil {
		return nil, nil, nil, err
	}

	for i := 0; i < f.Len()-1; i++ {
		row := f.Row(i)
		if hasNaN(row) {
			continue
		}
		label := 0
		if f.Close[i+1] > f.Close[i] {
			label = 1
		}
		rows = append(rows, row)
		labels = append(labels, label)
		times = append(times, bars[i].OpenTime.UnixMilli())
	}
	return rows, labels, times, nil
}

// SMA simple moving average.
func SMA(values []float64, period int) []float64 {
	if len(values) < period {
		return nanSlice(len(values))
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	out := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
	return alignRight(out, len(values))
}

// RSI relative strength index.
func RSI(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nanSlice(len(closes))
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	out := helper.ChanToSlice(rsi.Compute(helper.SliceToChan(closes)))
	return alignRight(out, len(closes))
}

// ATR average true range.
func ATR(highs, lows, closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nanSlice(len(closes))
	}
	atr := volatility.NewAtrWithPeriod[float64](period)
	out := helper.ChanToSlice(atr.Compute(
		helper.SliceToChan(highs),
		helper.SliceToChan(lows),
		helper.SliceToChan(closes),
	))
	return alignRight(out, len(closes))
}

// Bollinger returns lower, middle and upper bands using the population standard deviation.
func Bollinger(closes []float64, period int, k float64) (low, mid, high []float64) {
	n := len(closes)
	mid = rollingMean(closes, period)
	std := RollingStd(closes, period, 0)
	low, high = nanSlice(n), nanSlice(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(mid[i]) || math.IsNaN(std[i]) {
			continue
		}
		low[i] = mid[i] - k*std[i]
		high[i] = mid[i] + k*std[i]
	}
	return low, mid, high
}

// ROC rate of change in percent over period bars.
func ROC(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	for i := period; i < len(closes); i++ {
		if closes[i-period] == 0 {
			continue
		}
		out[i] = (closes[i]/closes[i-period] - 1.0) * 100.0
	}
	return out
}

// RollingStd rolling standard deviation with ddof delta degrees of freedom.
func RollingStd(values []float64, period, ddof int) []float64 {
	out := nanSlice(len(values))
	if period <= ddof {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		var sum float64
		for _, v := range window {
			sum += v
		}
		mean := sum / float64(period)
		var sq float64
		for _, v := range window {
			sq += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(sq / float64(period-ddof))
	}
	return out
}

// RollingMax rolling maximum over period bars.
func RollingMax(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	for i := period - 1; i >= 0 && i < len(values); i++ {
		m := math.Inf(-1)
		for _, v := range values[i-period+1 : i+1] {
			if v > m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}

// Shift moves values forward by one bar; the first slot becomes NaN.
func Shift(values []float64) []float64 {
	out := nanSlice(len(values))
	if len(values) > 1 {
		copy(out[1:], values[:len(values)-1])
	}
	return out
}

func rollingMean(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	for i := period - 1; i >= 0 && i < len(values); i++ {
		var sum float64
		for _, v := range values[i-period+1 : i+1] {
			sum += v
		}
		out[i] = sum / float64(period)
	}
	return out
}

// alignRight pads a warmup-shortened indicator output with leading NaN.
func alignRight(out []float64, n int) []float64 {
	res := nanSlice(n)
	if len(out) > n {
		out = out[len(out)-n:]
	}
	copy(res[n-len(out):], out)
	return res
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func hasNaN(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
