// Package ta implements the technical indicators derived by the market
// feed. Functions return NaN until enough samples exist; callers treat
// NaN as "unknown", never as zero.
package ta

import "math"

// RSI computes the Relative Strength Index over the last period changes.
// Needs period+1 closes. If the average loss is zero, RSI is 100.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

// EMA computes the exponential moving average with smoothing 2/(n+1),
// seeded by the earliest sample. Needs at least n closes.
func EMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	k := 2.0 / float64(n+1)
	ema := closes[0]
	for _, c := range closes[1:] {
		ema = c*k + ema*(1.0-k)
	}
	return ema
}

// ATR computes the mean of the last period true ranges, where true range
// is max(high-low, |high-prevClose|, |low-prevClose|). Needs period+1
// samples.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		sum += math.Max(tr1, math.Max(tr2, tr3))
	}
	return sum / float64(period)
}
