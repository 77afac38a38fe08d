package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/internal/schema"
)

func TestGuardianHaltsOnce(t *testing.T) {
	g := NewGuardian(schema.RiskLimits{MaxLoss: -5000})

	_, ok := g.OnMtmUpdate(-4999)
	assert.False(t, ok)
	assert.False(t, g.Halted())

	halt, ok := g.OnMtmUpdate(-5000)
	require.True(t, ok)
	assert.Equal(t, schema.HaltReasonMaxLoss, halt.Reason)
	assert.Equal(t, -5000.0, halt.Threshold)
	assert.Equal(t, -5000.0, halt.Value)
	assert.True(t, g.Halted())

	_, ok = g.OnMtmUpdate(-8000)
	assert.False(t, ok)
}

func TestGuardianUpdateLimitsKeepsLatch(t *testing.T) {
	g := NewGuardian(schema.RiskLimits{MaxLoss: -100})
	_, ok := g.OnMtmUpdate(-150)
	require.True(t, ok)

	g.UpdateLimits(schema.RiskLimits{MaxLoss: -1000})
	_, ok = g.OnMtmUpdate(-2000)
	assert.False(t, ok)
	assert.Equal(t, -1000.0, g.Limits().MaxLoss)

	g.ResetHalt()
	halt, ok := g.OnMtmUpdate(-2000)
	require.True(t, ok)
	assert.Equal(t, -1000.0, halt.Threshold)
}

func TestGuardianNewLimitsApplyNextEvaluation(t *testing.T) {
	g := NewGuardian(schema.RiskLimits{MaxLoss: -1000})
	_, ok := g.OnMtmUpdate(-500)
	assert.False(t, ok)

	g.UpdateLimits(schema.RiskLimits{MaxLoss: -400})
	_, ok = g.OnMtmUpdate(-500)
	assert.True(t, ok)
}

func TestGuardianDisabledLimit(t *testing.T) {
	g := NewGuardian(schema.RiskLimits{})
	_, ok := g.OnMtmUpdate(-1e9)
	assert.False(t, ok)
}

func TestGuardianMaxTrades(t *testing.T) {
	g := NewGuardian(schema.RiskLimits{MaxLoss: -100, MaxTrades: 2})
	_, ok := g.OnTrade()
	assert.False(t, ok)
	_, ok = g.OnTrade()
	assert.False(t, ok)

	halt, ok := g.OnTrade()
	require.True(t, ok)
	assert.Equal(t, schema.HaltReasonMaxTrades, halt.Reason)
	assert.Equal(t, 2.0, halt.Threshold)

	last, ok := g.LastHalt()
	require.True(t, ok)
	assert.Equal(t, halt, last)

	g.ResetHalt()
	assert.Zero(t, g.Trades())
	_, ok = g.LastHalt()
	assert.False(t, ok)
}
