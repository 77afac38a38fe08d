package obs

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/internal/schema"
)

func TestCollector(t *testing.T) {
	m := NewMetrics()
	m.ObserveEvent(schema.EventTick)
	m.ObserveFrame(3, 0, time.Millisecond)
	m.ObserveFrame(1, 1, 3*time.Millisecond)
	m.IncHalt(schema.HaltReasonMaxLoss)

	c := NewCollector(m)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP tickcore_frames_total Transport frames handled.
# TYPE tickcore_frames_total counter
tickcore_frames_total 2
# HELP tickcore_halts_total Risk halts triggered.
# TYPE tickcore_halts_total counter
tickcore_halts_total{reason="max_loss"} 1
# HELP tickcore_events_total Events emitted to the host.
# TYPE tickcore_events_total counter
tickcore_events_total{type="tick"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"tickcore_frames_total", "tickcore_halts_total", "tickcore_events_total"))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "tickcore_latency_max_seconds")
	assert.Contains(t, names, "tickcore_decode_skips_total")
}
