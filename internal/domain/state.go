package domain

// ConnectionState is the closed set of gateway connection states. Unknown is
// the explicit mapping target for any unrecognized status input.
type ConnectionState string

const (
	StateUnknown      ConnectionState = "unknown"
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateErrored      ConnectionState = "error"
	StateStopping     ConnectionState = "stopping"
	StateStopped      ConnectionState = "stopped"
)

// ParseConnectionState maps a loose status string onto the closed enum.
// Anything unrecognized becomes StateUnknown rather than a silent default.
func ParseConnectionState(s string) ConnectionState {
	switch ConnectionState(s) {
	case StateIdle, StateConnecting, StateConnected, StateDisconnected,
		StateErrored, StateStopping, StateStopped:
		return ConnectionState(s)
	default:
		return StateUnknown
	}
}

// StatusChange reports a connection state transition for one account.
type StatusChange struct {
	Account string          `json:"account"`
	State   ConnectionState `json:"state"`
}
