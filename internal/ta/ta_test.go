package ta

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSIInsufficientSamples(t *testing.T) {
	t.Parallel()
	closes := []float64{100, 101, 102}
	assert.True(t, math.IsNaN(RSI(closes, 14)))
	assert.True(t, math.IsNaN(RSI(nil, 14)))
	assert.True(t, math.IsNaN(RSI(closes, 0)))
}

func TestRSIAllGains(t *testing.T) {
	t.Parallel()
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	assert.Equal(t, 100.0, RSI(closes, 14))
}

func TestRSIBounds(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		closes []float64
	}{
		{"alternating", []float64{100, 102, 99, 104, 98, 105, 97, 106, 96, 107, 95, 108, 94, 109, 93}},
		{"downtrend", []float64{115, 114, 113, 112, 111, 110, 109, 108, 107, 106, 105, 104, 103, 102, 101}},
		{"flat with one dip", []float64{100, 100, 100, 100, 100, 100, 99, 100, 100, 100, 100, 100, 100, 100, 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v := RSI(tc.closes, 14)
			require.False(t, math.IsNaN(v))
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		})
	}
}

func TestRSIAllLosses(t *testing.T) {
	t.Parallel()
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 115 - float64(i)
	}
	assert.Equal(t, 0.0, RSI(closes, 14))
}

func TestEMAInsufficientSamples(t *testing.T) {
	t.Parallel()
	closes := make([]float64, 19)
	for i := range closes {
		closes[i] = 100
	}
	assert.True(t, math.IsNaN(EMA(closes, 20)))
	assert.False(t, math.IsNaN(EMA(append(closes, 100), 20)))
}

func TestEMAConstantSeries(t *testing.T) {
	t.Parallel()
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 42.5
	}
	assert.InDelta(t, 42.5, EMA(closes, 20), 1e-9)
}

func TestEMATracksRecentPrices(t *testing.T) {
	t.Parallel()
	// A long run at 100 followed by a jump: the EMA must land strictly
	// between the old level and the new one, closer to the new.
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	for i := 0; i < 10; i++ {
		closes = append(closes, 200)
	}
	v := EMA(closes, 20)
	assert.Greater(t, v, 100.0)
	assert.Less(t, v, 200.0)
	assert.Greater(t, v, 150.0)
}

func TestATRInsufficientSamples(t *testing.T) {
	t.Parallel()
	h := []float64{10, 11}
	l := []float64{9, 10}
	c := []float64{9.5, 10.5}
	assert.True(t, math.IsNaN(ATR(h, l, c, 14)))
}

func TestATRMismatchedLengths(t *testing.T) {
	t.Parallel()
	assert.True(t, math.IsNaN(ATR([]float64{1, 2}, []float64{1}, []float64{1, 2}, 1)))
}

func TestATRSimpleRange(t *testing.T) {
	t.Parallel()
	// Constant closes with a fixed high-low band: true range is the band.
	n := 20
	h := make([]float64, n)
	l := make([]float64, n)
	c := make([]float64, n)
	for i := 0; i < n; i++ {
		h[i] = 102
		l[i] = 98
		c[i] = 100
	}
	assert.InDelta(t, 4.0, ATR(h, l, c, 14), 1e-9)
}

func TestATRUsesGaps(t *testing.T) {
	t.Parallel()
	// A gap from the previous close beyond the bar's own range must
	// widen the true range.
	h := []float64{101, 111}
	l := []float64{99, 109}
	c := []float64{100, 110}
	// TR of second bar = max(2, |111-100|, |109-100|) = 11.
	assert.InDelta(t, 11.0, ATR(h, l, c, 1), 1e-9)
}
