package call

// State is the user-visible lifecycle of a call. It only moves
// forward; StateEnded and StateError are terminal.
type State int

const (
	// StateLoading covers configuration fetch, before any connect.
	StateLoading State = iota

	// StateConnecting covers signalling establishment and the dial.
	StateConnecting

	// StateRinging means the far end is being alerted.
	StateRinging

	// StateActive means the call was answered and media is flowing.
	StateActive

	// StateEnded is the normal terminal state.
	StateEnded

	// StateError is the terminal state for setup and transport
	// failures.
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateConnecting:
		return "connecting"
	case StateRinging:
		return "ringing"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateError
}
