package entity

type ConnectionState int

const (
	// DisconnectedState indicates that there is no broker connection.
	DisconnectedState ConnectionState = iota
	// ConnectingState indicates that a connect attempt is in flight.
	ConnectingState
	// ConnectedState indicates an established broker session.
	ConnectedState
	// FailedState indicates that the last connect attempt was rejected or lost.
	FailedState
)

func (s ConnectionState) String() string {
	switch s {
	case DisconnectedState:
		return "disconnected"
	case ConnectingState:
		return "connecting"
	case ConnectedState:
		return "connected"
	case FailedState:
		return "failed"
	default:
		return "unknown"
	}
}

func (s ConnectionState) OneOf(states ...ConnectionState) bool {
	for _, other := range states {
		if s == other {
			return true
		}
	}
	return false
}
