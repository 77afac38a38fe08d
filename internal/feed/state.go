package feed

// State is the lifecycle state of a keyed connection.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
	StateReconnectScheduled
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateReconnectScheduled:
		return "reconnect_scheduled"
	default:
		return "unknown"
	}
}

// NotificationKind tags a transport callback posted back to the owner loop.
type NotificationKind uint8

const (
	NotifyConnected NotificationKind = iota + 1
	NotifyFrame
	NotifyFailed
	NotifyReconnect
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyConnected:
		return "connected"
	case NotifyFrame:
		return "frame"
	case NotifyFailed:
		return "failed"
	case NotifyReconnect:
		return "reconnect"
	default:
		return "unknown"
	}
}
