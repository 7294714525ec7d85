// Package telephony wraps the third-party call transport behind a
// narrow session contract: place a call, receive lifecycle events and
// inbound audio, end the call. The rest of the controller never sees
// the transport's wire format.
package telephony

import "context"

// EventHandler receives call lifecycle events from a session. Handlers
// are invoked from the session's read goroutine; implementations must
// not block.
type EventHandler interface {
	// OnConnected is called when the signalling connection is up and
	// the call is ringing.
	OnConnected()

	// OnAnswered is called when the callee picks up. sampleRate is the
	// negotiated inbound media rate.
	OnAnswered(sampleRate int)

	// OnAudioFrame delivers one inbound frame of mono 16-bit PCM.
	OnAudioFrame(pcm []byte)

	// OnTerminated is called exactly once when the call ends, however
	// it ends.
	OnTerminated(reason string)

	// OnError reports a transport failure. Always followed by
	// OnTerminated.
	OnError(err error)
}

// NoOpEventHandler is a no-op implementation for convenience.
type NoOpEventHandler struct{}

func (h *NoOpEventHandler) OnConnected()              {}
func (h *NoOpEventHandler) OnAnswered(sampleRate int) {}
func (h *NoOpEventHandler) OnAudioFrame(pcm []byte)   {}
func (h *NoOpEventHandler) OnTerminated(reason string) {}
func (h *NoOpEventHandler) OnError(err error)         {}

// Session is one outbound phone call. Outgoing media is pulled from
// the process microphone acquisition point, so an installed virtual
// microphone is transparently picked up as the call's voice.
type Session interface {
	// RegisterHandler sets the event handler. Must be called before Dial.
	RegisterHandler(h EventHandler)

	// Dial places the outbound call.
	Dial(ctx context.Context, number string) error

	// Hangup ends the call from our side.
	Hangup() error

	// Close releases the session and its media resources. Idempotent.
	Close() error
}
