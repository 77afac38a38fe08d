package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnderlyingSymbol(t *testing.T) {
	testCases := []struct {
		symbol string
		want   string
		ok     bool
	}{
		{"NIFTY24JANFUT", "NIFTY", true},
		{"BANKNIFTY-FUT", "BANKNIFTY", true},
		{"M&M24FEBFUT", "M&M", true},
		{"nifty fut", "NIFTY", true},
		{"NIFTY", "", false},
		{"FUT", "", false},
		{"RELIANCE", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.symbol, func(t *testing.T) {
			got, ok := UnderlyingSymbol(tc.symbol)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBasis(t *testing.T) {
	spot := map[string]float64{"NIFTY": 22000}
	lookup := func(s string) (float64, bool) {
		p, ok := spot[s]
		return p, ok
	}

	b, ok := Basis("NIFTY24JANFUT", 22075.5, lookup)
	assert.True(t, ok)
	assert.InDelta(t, 75.5, b, 1e-9)

	_, ok = Basis("BANKNIFTY24JANFUT", 48000, lookup)
	assert.False(t, ok)

	_, ok = Basis("NIFTY", 22000, lookup)
	assert.False(t, ok)
}
