// Package audio provides PCM utilities for telephony-grade audio:
// energy measurement, WAV framing, μ-law codec conversion, sample-rate
// conversion and paced frame output.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// BytesPerSample is the width of one 16-bit PCM sample.
	BytesPerSample = 2
	// FrameDurationMs is the frame duration used on media paths.
	FrameDurationMs = 20
	// DefaultSampleRate is the telephony default used until the
	// transport reports the negotiated rate.
	DefaultSampleRate = 8000
)

// RMS computes the root-mean-square magnitude of a buffer of signed
// 16-bit little-endian PCM samples. A trailing odd byte is ignored.
// Empty input yields 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}

// BytesForDuration returns the PCM byte length of durationMs of mono
// 16-bit audio at the given sample rate.
func BytesForDuration(sampleRate, durationMs int) int {
	return sampleRate * durationMs / 1000 * BytesPerSample
}

// DurationMs returns the duration in milliseconds of a mono 16-bit PCM
// buffer at the given sample rate.
func DurationMs(pcm []byte, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / BytesPerSample
	return samples * 1000 / sampleRate
}

// ApplyGain scales 16-bit PCM samples in place. Gain 0 silences the
// buffer, 1 leaves it untouched. Values are clamped to the int16 range.
func ApplyGain(pcm []byte, gain float64) {
	if gain == 1 {
		return
	}
	n := len(pcm) / BytesPerSample
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))) * gain
		switch {
		case s > math.MaxInt16:
			s = math.MaxInt16
		case s < math.MinInt16:
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(pcm[i*BytesPerSample:], uint16(int16(s)))
	}
}
