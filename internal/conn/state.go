package conn

// State is the lifecycle of the managed socket
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateReconnectScheduled
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateClosed:
		return "Closed"
	case StateReconnectScheduled:
		return "ReconnectScheduled"
	default:
		return "Unknown"
	}
}
