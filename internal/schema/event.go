package schema

// EventType tags an event emitted from the core to the host.
type EventType string

const (
	EventTick               EventType = "tick"
	EventStatus             EventType = "status"
	EventError              EventType = "error"
	EventFailoverSuggestion EventType = "failover_suggestion"
	EventHaltTriggered      EventType = "halt_triggered"
	EventUnifiedMargin      EventType = "unified_margin"
)

// Halt reasons.
const (
	HaltReasonMaxLoss   = "max_loss"
	HaltReasonMaxTrades = "max_trades"
)

// FailoverSuggestion names a lagging connection.
type FailoverSuggestion struct {
	LaggingKey string `json:"laggingKey"`
	Source     string `json:"source"`
	LagMillis  int64  `json:"lagMillis"`
}

// Halt is the payload of EventHaltTriggered.
type Halt struct {
	Reason    string  `json:"reason"`
	Threshold float64 `json:"threshold"`
	Value     float64 `json:"value"`
}

// UnifiedMargin aggregates the margin figures of every source.
type UnifiedMargin struct {
	Total     string            `json:"total"`
	PerSource map[string]string `json:"perSource"`
}

// Event is the tagged message emitted from the core to the host.
type Event struct {
	Type      EventType           `json:"type"`
	Key       string              `json:"key,omitempty"`
	Ticks     []EnrichedTick      `json:"data,omitempty"`
	Connected *bool               `json:"connected,omitempty"`
	Message   string              `json:"message,omitempty"`
	Failover  *FailoverSuggestion `json:"failover,omitempty"`
	Halt      *Halt               `json:"halt,omitempty"`
	Margin    *UnifiedMargin      `json:"margin,omitempty"`
	Seq       uint64              `json:"seq"`
	TsNano    int64               `json:"ts"`
}

// StatusEvent builds an EventStatus.
func StatusEvent(key string, connected bool) Event {
	return Event{Type: EventStatus, Key: key, Connected: &connected}
}

// ErrorEvent builds an EventError.
func ErrorEvent(key string, err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{Type: EventError, Key: key, Message: msg}
}
