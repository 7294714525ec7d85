package micbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/outdial-ai/outdial/pkg/audio"
)

// hardwareSource captures real microphone audio through miniaudio.
// Only reached when no bridge is installed, or for request shapes the
// bridge does not service.
type hardwareSource struct {
	mctx       *malgo.AllocatedContext
	device     *malgo.Device
	frames     chan []byte
	sampleRate int

	closeOnce sync.Once
	closeErr  error
}

// openHardware opens the default capture device as a mono 16-bit
// stream at the telephony default rate.
func openHardware(ctx context.Context, c Constraints) (Source, error) {
	if c.Video {
		return nil, fmt.Errorf("video capture not supported on this device")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	s := &hardwareSource{
		mctx:       mctx,
		frames:     make(chan []byte, 16),
		sampleRate: audio.DefaultSampleRate,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(s.sampleRate)
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			frame := make([]byte, len(in))
			copy(frame, in)
			select {
			case s.frames <- frame:
			default:
				// Consumer stalled; drop rather than block the device thread.
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("failed to init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	s.device = device
	return s, nil
}

// ReadFrame returns the next captured frame.
func (s *hardwareSource) ReadFrame() ([]byte, error) {
	frame, ok := <-s.frames
	if !ok {
		return nil, fmt.Errorf("capture device closed")
	}
	return frame, nil
}

// SampleRate returns the capture rate.
func (s *hardwareSource) SampleRate() int {
	return s.sampleRate
}

// Close stops the device and releases the audio context.
func (s *hardwareSource) Close() error {
	s.closeOnce.Do(func() {
		if s.device != nil {
			s.device.Uninit()
		}
		if s.mctx != nil {
			if err := s.mctx.Uninit(); err != nil {
				s.closeErr = err
			}
			s.mctx.Free()
		}
		close(s.frames)
	})
	return s.closeErr
}
