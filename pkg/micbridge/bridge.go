package micbridge

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/outdial-ai/outdial/pkg/audio"
)

// Bridge is the virtual microphone: a paced synthetic audio source
// substituted for the hardware microphone while a call is live.
// Synthesized speech written via Playback is sliced into 20 ms frames
// and handed to whatever transport acquired the "microphone".
type Bridge struct {
	sampleRate int
	pacer      *audio.Pacer
	muted      atomic.Bool
	closed     atomic.Bool

	mu         sync.Mutex
	token      uint64
	installed  bool
	resamplers map[int]*audio.Resampler
}

// NewBridge creates a bridge producing frames at the given sample rate
// (0 selects the telephony default).
func NewBridge(sampleRate int) *Bridge {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &Bridge{
		sampleRate: sampleRate,
		pacer:      audio.NewPacer(sampleRate),
		resamplers: make(map[int]*audio.Resampler),
	}
}

// SampleRate returns the bridge output rate.
func (b *Bridge) SampleRate() int {
	return b.sampleRate
}

// Install swaps the process-wide microphone acquisition point so that
// audio-only capture requests receive this bridge's synthetic stream.
// Idempotent; fails if a different bridge is already installed.
func (b *Bridge) Install() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return fmt.Errorf("bridge is closed")
	}
	if b.installed {
		return nil
	}

	token, ok := install(b.open)
	if !ok {
		return fmt.Errorf("another virtual microphone is already installed")
	}
	b.token = token
	b.installed = true
	log.Printf("[MicBridge] Installed virtual microphone (%d Hz)", b.sampleRate)
	return nil
}

// Restore puts the original microphone binding back. Idempotent and
// safe to call on every teardown path.
func (b *Bridge) Restore() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.installed {
		return
	}
	restore(b.token)
	b.installed = false
	log.Printf("[MicBridge] Restored original microphone binding")
}

// open services capture requests while the bridge is installed.
func (b *Bridge) open(ctx context.Context, c Constraints) (Source, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("bridge is closed")
	}
	return &syntheticSource{bridge: b}, nil
}

// Playback queues synthesized speech and returns once it has been
// fully consumed by the transport — the engine's sequencing primitive
// for "wait until the agent finished speaking". Audio at a different
// sample rate is converted first.
func (b *Bridge) Playback(ctx context.Context, pcm []byte, sampleRate int) error {
	if b.closed.Load() {
		return fmt.Errorf("bridge is closed")
	}
	if len(pcm) == 0 {
		return nil
	}

	if sampleRate != b.sampleRate {
		converted, err := b.resample(pcm, sampleRate)
		if err != nil {
			return fmt.Errorf("playback resample: %w", err)
		}
		pcm = converted
	}

	b.pacer.Write(pcm)
	return b.pacer.WaitDrained(ctx)
}

func (b *Bridge) resample(pcm []byte, fromRate int) ([]byte, error) {
	b.mu.Lock()
	r, ok := b.resamplers[fromRate]
	if !ok {
		var err error
		r, err = audio.NewResampler(fromRate, b.sampleRate)
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		b.resamplers[fromRate] = r
	}
	b.mu.Unlock()
	return r.Convert(pcm)
}

// SetMuted silences (true) or restores (false) the synthetic stream.
// Immediate: the next frame read reflects the new gain.
func (b *Bridge) SetMuted(muted bool) {
	b.muted.Store(muted)
}

// Muted reports the current mute state.
func (b *Bridge) Muted() bool {
	return b.muted.Load()
}

// Close tears the bridge down: restores the acquisition binding, drops
// queued audio (releasing any Playback waiter) and frees resamplers.
// Idempotent.
func (b *Bridge) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.Restore()
	b.pacer.Clear()

	b.mu.Lock()
	for _, r := range b.resamplers {
		r.Free()
	}
	b.resamplers = make(map[int]*audio.Resampler)
	b.mu.Unlock()

	log.Printf("[MicBridge] Closed")
	return nil
}

// syntheticSource implements Source by pulling paced frames from the
// bridge's playout buffer; silence when nothing is queued.
type syntheticSource struct {
	bridge *Bridge
}

func (s *syntheticSource) ReadFrame() ([]byte, error) {
	if s.bridge.closed.Load() {
		return nil, fmt.Errorf("bridge is closed")
	}
	frame := s.bridge.pacer.ReadFrame()
	if s.bridge.muted.Load() {
		audio.ApplyGain(frame, 0)
	}
	return frame, nil
}

func (s *syntheticSource) SampleRate() int {
	return s.bridge.sampleRate
}

func (s *syntheticSource) Close() error {
	return nil
}
