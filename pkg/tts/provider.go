// Package tts provides the speech synthesis collaborator contract and
// its implementations. Synthesis failure is never fatal to a call: the
// engine substitutes the local degraded provider instead.
package tts

import "context"

// Request describes one synthesis call.
type Request struct {
	// Text to synthesize.
	Text string
	// Voice ID or name; empty selects the provider default.
	Voice string
	// Language is a BCP-47 tag, used by providers that support it.
	Language string
}

// Response carries synthesized audio as raw mono 16-bit PCM.
type Response struct {
	PCM        []byte
	SampleRate int
}

// Provider converts text to speech.
type Provider interface {
	// Name identifies the provider (e.g. "openai", "local-fallback").
	Name() string

	// Synthesize converts text to PCM audio.
	Synthesize(ctx context.Context, req *Request) (*Response, error)

	// ValidateConfig reports whether required credentials and settings
	// are present.
	ValidateConfig() error
}
