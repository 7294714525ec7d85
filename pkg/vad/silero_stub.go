//go:build !vad

package vad

import "fmt"

// SileroConfig holds configuration for the model-based detector.
// The model implementation is only compiled with the "vad" build tag.
type SileroConfig struct {
	ModelPath  string
	SampleRate int
	Threshold  float32
}

// NewSileroDetector is unavailable without the "vad" build tag.
func NewSileroDetector(cfg SileroConfig) (Detector, error) {
	return nil, fmt.Errorf("silero VAD support not compiled in (build with -tags vad)")
}
