package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFuseSingleSource(t *testing.T) {
	r := NewRegistry(Config{})
	assert.Equal(t, 101.5, r.Fuse("NIFTY", "zerodha", 101.5))
	assert.Equal(t, 99.0, r.Fuse("NIFTY", "zerodha", 99.0))
}

func TestFuseTwoSourcesMean(t *testing.T) {
	r := NewRegistry(Config{})
	r.Fuse("NIFTY", "zerodha", 100)
	assert.Equal(t, 102.0, r.Fuse("NIFTY", "angel", 104))
}

func TestFuseThreeSourcesMedian(t *testing.T) {
	r := NewRegistry(Config{})
	r.Fuse("NIFTY", "a", 98)
	r.Fuse("NIFTY", "b", 105)
	assert.Equal(t, 100.0, r.Fuse("NIFTY", "c", 100))
}

func TestFuseOrderIndependent(t *testing.T) {
	orders := [][]string{{"a", "b", "c"}, {"c", "a", "b"}, {"b", "c", "a"}}
	prices := map[string]float64{"a": 98, "b": 105, "c": 100}
	for _, order := range orders {
		r := NewRegistry(Config{})
		var fused float64
		for _, src := range order {
			fused = r.Fuse("X", src, prices[src])
		}
		assert.Equal(t, 100.0, fused, "order %v", order)
		// re-reporting the same snapshot is idempotent
		assert.Equal(t, 100.0, r.Fuse("X", order[0], prices[order[0]]))
	}
}

func TestFuseSymbolsIsolated(t *testing.T) {
	r := NewRegistry(Config{})
	r.Fuse("NIFTY", "a", 100)
	assert.Equal(t, 50.0, r.Fuse("BANKNIFTY", "b", 50))
	assert.Equal(t, 1, r.Sources("NIFTY"))
	assert.Equal(t, 1, r.Sources("BANKNIFTY"))
}

func TestRegistryMaxSymbolsEvictsLeastRecent(t *testing.T) {
	r := NewRegistry(Config{MaxSymbols: 2})
	r.Fuse("A", "s", 1)
	r.Fuse("B", "s", 2)
	r.Fuse("A", "s", 3)
	r.Fuse("C", "s", 4)

	assert.Equal(t, 2, r.Len())
	_, ok := r.Price("B", "s")
	assert.False(t, ok)
	p, ok := r.Price("A", "s")
	assert.True(t, ok)
	assert.Equal(t, 3.0, p)
}

func TestRegistrySourceTTL(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := NewRegistry(Config{SourceTTL: time.Second})
	r.now = func() time.Time { return now }

	r.Fuse("A", "slow", 100)
	now = now.Add(2 * time.Second)
	assert.Equal(t, 110.0, r.Fuse("A", "fast", 110))
	assert.Equal(t, 1, r.Sources("A"))

	_, ok := r.Price("A", "slow")
	assert.False(t, ok)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 3.0, Median([]float64{3}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
}
