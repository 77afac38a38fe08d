package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateEMAUndefinedUntilPeriod(t *testing.T) {
	e := NewEngine(Config{})
	for i := 1; i < 5; i++ {
		_, ok := e.UpdateEMA("NIFTY", float64(i), 5)
		assert.False(t, ok, "sample %d", i)
	}
	v, ok := e.UpdateEMA("NIFTY", 5, 5)
	require.True(t, ok)

	want, _ := EMA([]float64{1, 2, 3, 4, 5}, 5)
	assert.InDelta(t, want, v, 1e-12)
}

func TestUpdateEMAConvergesOnIncreasingSeries(t *testing.T) {
	e := NewEngine(Config{})
	var (
		last float64
		prev float64
	)
	for i := 1; i <= 200; i++ {
		v, ok := e.UpdateEMA("X", float64(i), 10)
		if !ok {
			continue
		}
		assert.GreaterOrEqual(t, v, prev)
		prev = v
		last = v
	}
	// steady state lag of an EMA on a unit slope is (period-1)/2
	assert.InDelta(t, 200-4.5, last, 1e-6)
}

func TestUpdateEMAIncrementalMatchesRecompute(t *testing.T) {
	e := NewEngine(Config{HistoryCap: 500})
	prices := []float64{100, 101.5, 99.8, 102, 103.3, 101.1, 104, 105.2, 103.9, 106}
	var got float64
	for _, p := range prices {
		got, _ = e.UpdateEMA("X", p, 3)
	}
	want, ok := EMA(prices, 3)
	require.True(t, ok)
	assert.InDelta(t, want, got, 1e-9)
}

func TestUpdateEMAHistoryBounded(t *testing.T) {
	e := NewEngine(Config{HistoryCap: 4})
	for i := 0; i < 10; i++ {
		e.UpdateEMA("X", float64(i), 2)
	}
	assert.Equal(t, 4, e.HistoryLen("X"))
}

func TestEngineMaxSymbols(t *testing.T) {
	e := NewEngine(Config{MaxSymbols: 2})
	e.UpdateEMA("A", 1, 2)
	e.UpdateEMA("B", 1, 2)
	e.UpdateEMA("A", 2, 2)
	e.UpdateEMA("C", 1, 2)
	assert.Equal(t, 2, e.Len())
	assert.Zero(t, e.HistoryLen("B"))
	assert.Equal(t, 2, e.HistoryLen("A"))
}

func TestHistoryRing(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Append(float64(i))
	}
	assert.Equal(t, []float64{3, 4, 5}, h.Values(nil))
	assert.Equal(t, 3, h.Cap())
}

func TestEMARejectsShortInput(t *testing.T) {
	_, ok := EMA([]float64{1, 2}, 3)
	assert.False(t, ok)
	_, ok = EMA([]float64{1, 2}, 0)
	assert.False(t, ok)
}
