// Package vad provides voice activity detection for the turn-taking
// engine. The default detector is a pure-Go RMS energy threshold
// calibrated for 16-bit telephony PCM; a Silero model detector is
// available behind the "vad" build tag.
package vad

import (
	"github.com/outdial-ai/outdial/pkg/audio"
)

// DefaultThreshold is the RMS level above which a frame of 16-bit
// telephony-grade PCM is considered to carry speech energy.
const DefaultThreshold = 400

// Detector decides whether a PCM frame contains speech energy.
// Implementations must be safe for use from a single goroutine; the
// engine serializes all frame handling.
type Detector interface {
	// Detect reports whether the frame carries speech energy.
	Detect(pcm []byte) bool

	// Reset clears any internal state between utterances or calls.
	Reset()
}

// EnergyDetector is an RMS-threshold detector. It does no spectral
// analysis; loudness is the only speech proxy, which is cheap and
// predictable on a phone line.
type EnergyDetector struct {
	threshold  float64
	lastEnergy float64
}

// NewEnergyDetector creates a detector with the given RMS threshold.
// A threshold of 0 selects DefaultThreshold.
func NewEnergyDetector(threshold float64) *EnergyDetector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &EnergyDetector{threshold: threshold}
}

// Detect reports whether the frame's RMS energy exceeds the threshold.
func (d *EnergyDetector) Detect(pcm []byte) bool {
	d.lastEnergy = audio.RMS(pcm)
	return d.lastEnergy > d.threshold
}

// LastEnergy returns the RMS of the most recent frame, for logging.
func (d *EnergyDetector) LastEnergy() float64 {
	return d.lastEnergy
}

// Threshold returns the configured RMS threshold.
func (d *EnergyDetector) Threshold() float64 {
	return d.threshold
}

// Reset clears the detector state.
func (d *EnergyDetector) Reset() {
	d.lastEnergy = 0
}

var _ Detector = (*EnergyDetector)(nil)
