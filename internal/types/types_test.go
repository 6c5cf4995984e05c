package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPnLAt(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		side  Side
		price float64
		want  float64
	}{
		{"long gain", Long, 110, 50},
		{"long loss", Long, 90, -50},
		{"short loss", Short, 110, -50},
		{"short gain", Short, 90, 50},
		{"flat", Long, 100, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := Position{Side: tc.side, EntryPrice: 100, Size: 100, Leverage: 5}
			assert.InDelta(t, tc.want, p.PnLAt(tc.price), 1e-9)
		})
	}
}

func TestPnLAtZeroEntry(t *testing.T) {
	t.Parallel()
	p := Position{Side: Long, Size: 100, Leverage: 5}
	assert.Equal(t, 0.0, p.PnLAt(110))
}

func TestExposure(t *testing.T) {
	t.Parallel()
	p := Position{Size: 150, Leverage: 10}
	assert.InDelta(t, 1500, p.Exposure(), 1e-9)
}

func TestSideSign(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1.0, Long.Sign())
	assert.Equal(t, -1.0, Short.Sign())
}
