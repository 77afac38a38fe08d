package obs

import (
	"sync/atomic"
	"time"

	"tickcore/internal/schema"
)

var eventTypes = [...]schema.EventType{
	schema.EventTick,
	schema.EventStatus,
	schema.EventError,
	schema.EventFailoverSuggestion,
	schema.EventHaltTriggered,
	schema.EventUnifiedMargin,
}

func eventIndex(t schema.EventType) int {
	for i, et := range eventTypes {
		if et == t {
			return i
		}
	}
	return -1
}

// Metrics collects lightweight counters and latency stats for the core.
type Metrics struct {
	eventCounts     [len(eventTypes)]uint64
	frames          uint64
	ticks           uint64
	decodeSkips     uint64
	reconnects      uint64
	failovers       uint64
	haltsMaxLoss    uint64
	haltsMaxTrades  uint64
	commandsRejects uint64
	queueDrops      uint64
	queueClosed     uint64

	frameLatency   LatencyStats
	commandLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts      map[schema.EventType]uint64
	Frames           uint64
	Ticks            uint64
	DecodeSkips      uint64
	Reconnects       uint64
	Failovers        uint64
	HaltCounts       map[string]uint64
	CommandsRejected uint64
	QueueDrops       uint64
	QueueClosed      uint64
	FrameLatency     LatencySnapshot
	CommandLatency   LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts an emitted event by type.
func (m *Metrics) ObserveEvent(t schema.EventType) {
	if m == nil {
		return
	}
	if idx := eventIndex(t); idx >= 0 {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
}

// ObserveFrame records one decoded frame with its tick and skip counts
// and the time spent from receipt to emission.
func (m *Metrics) ObserveFrame(ticks, skipped int, d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.frames, 1)
	if ticks > 0 {
		atomic.AddUint64(&m.ticks, uint64(ticks))
	}
	if skipped > 0 {
		atomic.AddUint64(&m.decodeSkips, uint64(skipped))
	}
	m.frameLatency.Observe(d)
}

// IncReconnect records a scheduled reconnect.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reconnects, 1)
}

// IncFailover records an emitted failover suggestion.
func (m *Metrics) IncFailover() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.failovers, 1)
}

// IncHalt records a latched halt by reason.
func (m *Metrics) IncHalt(reason string) {
	if m == nil {
		return
	}
	switch reason {
	case schema.HaltReasonMaxLoss:
		atomic.AddUint64(&m.haltsMaxLoss, 1)
	case schema.HaltReasonMaxTrades:
		atomic.AddUint64(&m.haltsMaxTrades, 1)
	}
}

// IncCommandRejected records a malformed, unknown or refused command.
func (m *Metrics) IncCommandRejected() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.commandsRejects, 1)
}

// IncQueueDrop records a queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// ObserveCommand measures command handling latency.
func (m *Metrics) ObserveCommand(d time.Duration) {
	if m == nil {
		return
	}
	m.commandLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[eventTypes[i]] = v
		}
	}
	halts := make(map[string]uint64)
	if v := atomic.LoadUint64(&m.haltsMaxLoss); v > 0 {
		halts[schema.HaltReasonMaxLoss] = v
	}
	if v := atomic.LoadUint64(&m.haltsMaxTrades); v > 0 {
		halts[schema.HaltReasonMaxTrades] = v
	}
	return Snapshot{
		EventCounts:      eventCounts,
		Frames:           atomic.LoadUint64(&m.frames),
		Ticks:            atomic.LoadUint64(&m.ticks),
		DecodeSkips:      atomic.LoadUint64(&m.decodeSkips),
		Reconnects:       atomic.LoadUint64(&m.reconnects),
		Failovers:        atomic.LoadUint64(&m.failovers),
		HaltCounts:       halts,
		CommandsRejected: atomic.LoadUint64(&m.commandsRejects),
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		QueueClosed:      atomic.LoadUint64(&m.queueClosed),
		FrameLatency:     m.frameLatency.Snapshot(),
		CommandLatency:   m.commandLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
