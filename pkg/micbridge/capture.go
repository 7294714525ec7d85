// Package micbridge substitutes a synthetic audio source for the real
// microphone for the lifetime of a call. The telephony transport asks
// the process-wide acquisition point for a capture stream and receives
// the bridge's paced synthesis output instead of hardware input; it
// never knows the difference.
package micbridge

import (
	"context"
	"fmt"
	"sync"
)

// Constraints describe a capture request.
type Constraints struct {
	Audio bool
	Video bool
}

// Source is a pull-based stream of fixed-duration PCM frames.
type Source interface {
	// ReadFrame returns the next 20 ms mono 16-bit PCM frame.
	ReadFrame() ([]byte, error)

	// SampleRate returns the stream's sample rate.
	SampleRate() int

	// Close releases the source.
	Close() error
}

// Opener acquires a capture Source for the given constraints.
type Opener func(ctx context.Context, c Constraints) (Source, error)

var (
	captureMu sync.RWMutex
	// hardwareOpener is the original acquisition binding. Swappable in
	// tests; production leaves it on the malgo device opener.
	hardwareOpener Opener = openHardware
	// override, when set, services audio-only requests instead of the
	// hardware opener.
	override      Opener
	overrideToken uint64
)

// Acquire returns a capture source for the constraints. While a bridge
// is installed, audio-only requests are served by the bridge; any other
// request shape passes through to the original binding unchanged.
func Acquire(ctx context.Context, c Constraints) (Source, error) {
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("capture request must ask for audio or video")
	}

	captureMu.RLock()
	o := override
	hw := hardwareOpener
	captureMu.RUnlock()

	if o != nil && c.Audio && !c.Video {
		return o(ctx, c)
	}
	return hw(ctx, c)
}

// install swaps the audio acquisition binding and returns a token the
// installer must present to restore it. Fails if another override is
// already installed.
func install(o Opener) (uint64, bool) {
	captureMu.Lock()
	defer captureMu.Unlock()
	if override != nil {
		return 0, false
	}
	overrideToken++
	override = o
	return overrideToken, true
}

// restore puts the original binding back. Idempotent; a stale token
// from an earlier bridge cannot clobber a newer install.
func restore(token uint64) {
	captureMu.Lock()
	defer captureMu.Unlock()
	if override != nil && token == overrideToken {
		override = nil
	}
}
