package audio

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_FrameSize(t *testing.T) {
	p := NewPacer(8000)
	frame := p.ReadFrame()
	// 20ms at 8kHz mono 16-bit = 320 bytes
	assert.Equal(t, 320, len(frame))
}

func TestPacer_SilenceWhenEmpty(t *testing.T) {
	p := NewPacer(8000)
	frame := p.ReadFrame()
	assert.True(t, bytes.Equal(frame, make([]byte, len(frame))), "dry pacer must emit silence")
}

func TestPacer_SlicesWrites(t *testing.T) {
	p := NewPacer(8000)

	data := make([]byte, 800)
	for i := range data {
		data[i] = byte(i % 251)
	}
	p.Write(data)

	f1 := p.ReadFrame()
	assert.Equal(t, data[:320], f1)

	f2 := p.ReadFrame()
	assert.Equal(t, data[320:640], f2)

	// Remaining 160 bytes padded with silence.
	f3 := p.ReadFrame()
	assert.Equal(t, data[640:], f3[:160])
	assert.Equal(t, make([]byte, 160), f3[160:])

	assert.Equal(t, 0, p.Pending())
}

func TestPacer_WaitDrained(t *testing.T) {
	p := NewPacer(8000)
	p.Write(make([]byte, 640))

	done := make(chan error, 1)
	go func() {
		done <- p.WaitDrained(context.Background())
	}()

	// Not drained yet after one frame.
	p.ReadFrame()
	select {
	case <-done:
		t.Fatal("WaitDrained returned before buffer was empty")
	case <-time.After(20 * time.Millisecond):
	}

	p.ReadFrame()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitDrained did not return after drain")
	}
}

func TestPacer_WaitDrained_EmptyReturnsImmediately(t *testing.T) {
	p := NewPacer(8000)
	require.NoError(t, p.WaitDrained(context.Background()))
}

func TestPacer_WaitDrained_ContextCancel(t *testing.T) {
	p := NewPacer(8000)
	p.Write(make([]byte, 640))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.WaitDrained(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPacer_Clear(t *testing.T) {
	p := NewPacer(8000)
	p.Write(make([]byte, 6400))

	done := make(chan error, 1)
	go func() {
		done <- p.WaitDrained(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)

	p.Clear()
	assert.Equal(t, 0, p.Pending())

	select {
	case err := <-done:
		require.NoError(t, err, "Clear must release drain waiters")
	case <-time.After(time.Second):
		t.Fatal("Clear did not release drain waiter")
	}
}
