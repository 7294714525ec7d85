package engine

// TurnState tracks whose turn it is. At most one turn is in flight at
// any moment; transitions happen under the engine's lock.
type TurnState int

const (
	// StateIdle is the state before the call is answered.
	StateIdle TurnState = iota

	// StateGreeting plays the opening line.
	StateGreeting

	// StateListening accumulates caller audio and watches for silence.
	StateListening

	// StateProcessing transcribes and reasons over the caller's turn.
	StateProcessing

	// StateSpeaking plays the synthesized reply into the call.
	StateSpeaking
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGreeting:
		return "greeting"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}
