package schema

// TransportKind selects how a connection reaches its source.
type TransportKind string

const (
	// TransportStreamingSocket is a websocket carrying binary tick frames.
	TransportStreamingSocket TransportKind = "streaming-socket"
	// TransportServerPush is a text/event-stream carrying JSON ticks.
	TransportServerPush TransportKind = "server-push"
)

// IsAvailable reports whether the kind is one the core can open.
func (k TransportKind) IsAvailable() bool {
	return k == TransportStreamingSocket || k == TransportServerPush
}

// Priority orders transports for failover; lower is preferred.
func (k TransportKind) Priority() int {
	switch k {
	case TransportStreamingSocket:
		return 0
	case TransportServerPush:
		return 1
	default:
		return 2
	}
}

// CommandType tags a host command.
type CommandType string

const (
	CommandConnect          CommandType = "connect"
	CommandDisconnect       CommandType = "disconnect"
	CommandUpdateRiskLimits CommandType = "update_risk_limits"
	CommandNotifyMtm        CommandType = "notify_mtm"
	CommandNotifyTrade      CommandType = "notify_trade"
	CommandResetHalt        CommandType = "reset_halt"
	CommandMargin           CommandType = "margin"
)

// RiskLimits is the loss based circuit breaker configuration.
// MaxLoss is negative; MaxTrades of zero disables the trade count check.
type RiskLimits struct {
	MaxLoss   float64 `json:"maxLoss" yaml:"max_loss"`
	MaxTrades int     `json:"maxTrades" yaml:"max_trades"`
}

// ConnectRequest opens (or replaces) the connection under Key.
type ConnectRequest struct {
	Key       string            `json:"key" yaml:"key"`
	URL       string            `json:"url" yaml:"url"`
	Transport TransportKind     `json:"transport" yaml:"transport"`
	Source    string            `json:"source" yaml:"source"`
	Tokens    []uint32          `json:"tokens,omitempty" yaml:"tokens"`
	Symbols   map[uint32]string `json:"symbols,omitempty" yaml:"symbols"`
}

// ConnectionKey returns Key, or URL when no key was given.
func (r ConnectRequest) ConnectionKey() string {
	if r.Key != "" {
		return r.Key
	}
	return r.URL
}

// MarginUpdate is a per-source margin figure pushed by the host.
type MarginUpdate struct {
	Source string `json:"source"`
	Margin string `json:"margin"`
}

// Command is the tagged message sent from the host into the core.
// Mtm may ride along with any command type.
type Command struct {
	Type    CommandType     `json:"type"`
	Connect *ConnectRequest `json:"connect,omitempty"`
	Key     string          `json:"key,omitempty"`
	Limits  *RiskLimits     `json:"limits,omitempty"`
	Mtm     *float64        `json:"mtm,omitempty"`
	Margin  *MarginUpdate   `json:"margin,omitempty"`
}
