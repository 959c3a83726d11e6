package feed

// State is the lifecycle of a Supervisor.
type State uint32

const (
	_state_beg State = iota
	StateDisconnected
	StateConnecting
	StateStreaming
	StateTerminated
	_state_end
)

func (s State) IsAvailable() bool {
	return s > _state_beg && s < _state_end
}

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
