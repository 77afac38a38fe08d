package margin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/internal/schema"
)

func TestAggregatorUpdate(t *testing.T) {
	a := NewAggregator()

	um, err := a.Update(schema.MarginUpdate{Source: "zerodha", Margin: "100000.10"})
	require.NoError(t, err)
	assert.Equal(t, "100000.1", um.Total)

	um, err = a.Update(schema.MarginUpdate{Source: "angel", Margin: "0.2"})
	require.NoError(t, err)
	assert.Equal(t, "100000.3", um.Total)
	assert.Equal(t, map[string]string{"zerodha": "100000.1", "angel": "0.2"}, um.PerSource)

	um, err = a.Update(schema.MarginUpdate{Source: "zerodha", Margin: "-50"})
	require.NoError(t, err)
	assert.Equal(t, "-49.8", um.Total)
}

func TestAggregatorRejectsBadInput(t *testing.T) {
	a := NewAggregator()
	_, err := a.Update(schema.MarginUpdate{Margin: "1"})
	assert.Error(t, err)
	_, err = a.Update(schema.MarginUpdate{Source: "x", Margin: "abc"})
	assert.Error(t, err)
	assert.Equal(t, "0", a.Total().String())
}
