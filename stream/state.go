package stream

// State is the lifecycle state of a Connection. A connection is in
// exactly one state at any instant, and every transition is reported
// through the OnStateChange callback.
type State int

const (
	// StateDisconnected is the initial state, and the terminal state
	// after Stop or a fatal error.
	StateDisconnected State = iota
	// StateConnecting means a transport attempt is in flight.
	StateConnecting
	// StateConnected means the backend acknowledged the stream.
	StateConnected
	// StateReconnecting means the transport failed transiently and a
	// reconnect is pending.
	StateReconnecting
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
