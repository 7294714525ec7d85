package audio

import (
	"context"
	"sync"
)

// Pacer turns an irregular stream of synthesized PCM into fixed 20 ms
// frames for a media transport. It only buffers and slices; it does no
// resampling. When the buffer runs dry it emits silence, so a consumer
// can pull frames on a fixed cadence regardless of producer timing.
type Pacer struct {
	mu            sync.Mutex
	buffer        []byte
	bytesPerFrame int
	waiters       []chan struct{}
}

// NewPacer creates a pacer for mono 16-bit PCM at the given sample rate.
func NewPacer(sampleRate int) *Pacer {
	bytesPerFrame := BytesForDuration(sampleRate, FrameDurationMs)
	return &Pacer{
		buffer:        make([]byte, 0, bytesPerFrame*100),
		bytesPerFrame: bytesPerFrame,
	}
}

// Write appends PCM data to the playout buffer.
func (p *Pacer) Write(data []byte) {
	if len(data) == 0 {
		return
	}
	p.mu.Lock()
	p.buffer = append(p.buffer, data...)
	p.mu.Unlock()
}

// ReadFrame returns the next 20 ms frame. Partial data is padded and a
// dry buffer yields pure silence.
func (p *Pacer) ReadFrame() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame := make([]byte, p.bytesPerFrame)

	switch {
	case len(p.buffer) >= p.bytesPerFrame:
		copy(frame, p.buffer[:p.bytesPerFrame])
		p.buffer = p.buffer[p.bytesPerFrame:]
	case len(p.buffer) > 0:
		copy(frame, p.buffer)
		p.buffer = p.buffer[:0]
	}

	if len(p.buffer) == 0 {
		p.notifyDrainedLocked()
	}
	return frame
}

// Pending returns the number of buffered bytes not yet read.
func (p *Pacer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Clear drops all buffered audio and releases any drain waiters.
func (p *Pacer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer = p.buffer[:0]
	p.notifyDrainedLocked()
}

// WaitDrained blocks until all audio written so far has been read out
// (or dropped by Clear), or until ctx is done.
func (p *Pacer) WaitDrained(ctx context.Context) error {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pacer) notifyDrainedLocked() {
	for _, ch := range p.waiters {
		close(ch)
	}
	p.waiters = nil
}
