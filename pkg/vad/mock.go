package vad

import "sync"

// MockDetector is a hand-rolled Detector for tests. Behavior is
// customized through DetectFunc; calls are recorded for verification.
type MockDetector struct {
	// DetectFunc is called when Detect is invoked. If nil, Detect
	// returns false.
	DetectFunc func(pcm []byte) bool

	// DetectCalls records every frame passed to Detect.
	DetectCalls [][]byte

	// ResetCalled tracks whether Reset was invoked.
	ResetCalled bool

	mu sync.Mutex
}

// NewMockDetector creates a MockDetector with default (no speech) behavior.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// NewMockDetectorWithSequence creates a detector that returns the given
// decisions in order, repeating the last one once exhausted.
func NewMockDetectorWithSequence(decisions []bool) *MockDetector {
	idx := 0
	return &MockDetector{
		DetectFunc: func(pcm []byte) bool {
			if len(decisions) == 0 {
				return false
			}
			d := decisions[idx]
			if idx < len(decisions)-1 {
				idx++
			}
			return d
		},
	}
}

// Detect implements Detector.
func (m *MockDetector) Detect(pcm []byte) bool {
	m.mu.Lock()
	frame := make([]byte, len(pcm))
	copy(frame, pcm)
	m.DetectCalls = append(m.DetectCalls, frame)
	m.mu.Unlock()

	if m.DetectFunc != nil {
		return m.DetectFunc(pcm)
	}
	return false
}

// Reset implements Detector.
func (m *MockDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCalled = true
}

var _ Detector = (*MockDetector)(nil)
