package tts

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"
)

// FallbackProvider is the local degraded synthesizer used when the real
// synthesis collaborator is unreachable. It produces an audible tone
// cadence derived from the text: one tone per word, pitch and length
// keyed to the word. Lossy by design — the caller hears that the agent
// "said something" rather than dead air.
type FallbackProvider struct {
	sampleRate int
}

// NewFallbackProvider creates a fallback synthesizer emitting PCM at
// the given sample rate (0 selects 8000).
func NewFallbackProvider(sampleRate int) *FallbackProvider {
	if sampleRate <= 0 {
		sampleRate = 8000
	}
	return &FallbackProvider{sampleRate: sampleRate}
}

// Name returns the provider name.
func (p *FallbackProvider) Name() string {
	return "local-fallback"
}

// ValidateConfig always succeeds; the fallback has no credentials.
func (p *FallbackProvider) ValidateConfig() error {
	return nil
}

// Synthesize renders the tone cadence for the text. It never fails.
func (p *FallbackProvider) Synthesize(ctx context.Context, req *Request) (*Response, error) {
	words := strings.Fields(req.Text)

	gap := p.silence(60)
	var out []byte
	for i, w := range words {
		if i > 0 {
			out = append(out, gap...)
		}
		out = append(out, p.wordTone(w)...)
	}
	if len(out) == 0 {
		out = p.silence(200)
	}

	return &Response{PCM: out, SampleRate: p.sampleRate}, nil
}

// wordTone renders one word as a sine tone. Pitch lands in the voice
// band (200-600 Hz); duration tracks word length, clamped to 80-320ms.
func (p *FallbackProvider) wordTone(word string) []byte {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(word)))
	freq := 200 + float64(h.Sum32()%400)

	durMs := 80 + len(word)*40
	if durMs > 320 {
		durMs = 320
	}

	samples := p.sampleRate * durMs / 1000
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		// Short attack/release ramps avoid clicks at tone edges.
		env := 1.0
		ramp := p.sampleRate / 100 // 10ms
		if i < ramp {
			env = float64(i) / float64(ramp)
		} else if samples-i < ramp {
			env = float64(samples-i) / float64(ramp)
		}
		s := int16(6000 * env * math.Sin(2*math.Pi*freq*float64(i)/float64(p.sampleRate)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func (p *FallbackProvider) silence(durMs int) []byte {
	return make([]byte, p.sampleRate*durMs/1000*2)
}

var _ Provider = (*FallbackProvider)(nil)
