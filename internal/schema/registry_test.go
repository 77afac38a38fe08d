package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySymbol(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(Instrument{Token: 256265, Symbol: "NIFTY"}))
	require.NoError(t, reg.Add(Instrument{Token: 99926000, Source: "angel", Symbol: "NIFTY"}))
	require.Error(t, reg.Add(Instrument{Token: 1}))

	s, ok := reg.Symbol("zerodha", 256265)
	assert.True(t, ok)
	assert.Equal(t, "NIFTY", s)

	s, ok = reg.Symbol("angel", 99926000)
	assert.True(t, ok)
	assert.Equal(t, "NIFTY", s)

	s, ok = reg.Symbol("zerodha", 99926000)
	assert.False(t, ok)
	assert.Equal(t, "99926000", s)

	assert.Equal(t, 2, reg.Len())
}

func TestSegmentOf(t *testing.T) {
	assert.Equal(t, SegmentIndices, SegmentOf(256265))
	assert.True(t, SegmentOf(256265).IsIndex())
	assert.Equal(t, SegmentNSE, SegmentOf(408065))
	assert.False(t, SegmentOf(408065).IsIndex())
}
