//go:build vad

package vad

import (
	"encoding/binary"
	"fmt"

	"github.com/streamer45/silero-vad-go/speech"
)

// SileroConfig holds configuration for the model-based detector.
type SileroConfig struct {
	ModelPath string
	// SampleRate must be 8000 or 16000.
	SampleRate int
	// Threshold is the speech probability cutoff (default 0.5).
	Threshold float32
}

// SileroDetector wraps the Silero VAD model behind the Detector
// interface. Frames are buffered into the model's window size; between
// windows the previous decision is held.
type SileroDetector struct {
	det        *speech.Detector
	buf        []float32
	windowSize int
	speaking   bool
}

// NewSileroDetector creates a model-based detector. The model file must
// be available at cfg.ModelPath.
func NewSileroDetector(cfg SileroConfig) (*SileroDetector, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	if cfg.SampleRate != 8000 && cfg.SampleRate != 16000 {
		return nil, fmt.Errorf("unsupported sample rate: %d", cfg.SampleRate)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.5
	}

	det, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  cfg.ModelPath,
		SampleRate: cfg.SampleRate,
		Threshold:  cfg.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create silero detector: %w", err)
	}

	windowSize := 512
	if cfg.SampleRate == 8000 {
		windowSize = 256
	}

	return &SileroDetector{
		det:        det,
		buf:        make([]float32, 0, windowSize),
		windowSize: windowSize,
	}, nil
}

// Detect reports whether speech is present, updating its decision once
// per full model window.
func (d *SileroDetector) Detect(pcm []byte) bool {
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		d.buf = append(d.buf, float32(s)/32768.0)
	}

	for len(d.buf) >= d.windowSize {
		window := d.buf[:d.windowSize]
		segments, err := d.det.Detect(window)
		if err == nil {
			d.speaking = len(segments) > 0
		}
		d.buf = d.buf[d.windowSize:]
	}
	return d.speaking
}

// Reset clears the model state and the frame buffer.
func (d *SileroDetector) Reset() {
	d.det.Reset()
	d.buf = d.buf[:0]
	d.speaking = false
}

// Close releases the model session.
func (d *SileroDetector) Close() error {
	return d.det.Destroy()
}

var _ Detector = (*SileroDetector)(nil)
