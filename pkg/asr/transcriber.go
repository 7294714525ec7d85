// Package asr provides the speech transcription collaborator contract.
// The turn-taking engine hands it one WAV-wrapped utterance at a time;
// streaming recognition is deliberately out of scope.
package asr

import (
	"context"
	"fmt"
)

// Transcriber converts one complete WAV-wrapped utterance to text.
// An empty result is valid and means "nothing intelligible"; the caller
// treats both empty text and errors as a soft failure for the turn.
type Transcriber interface {
	// Transcribe returns the transcript of the utterance. sampleRate is
	// the rate declared in the WAV header; language is a BCP-47 tag and
	// may be empty for auto-detection.
	Transcribe(ctx context.Context, wav []byte, sampleRate int, language string) (string, error)
}

// ErrorCode classifies transcription failures.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeInvalidAudio
	ErrCodeProviderError
)

// Error is a transcription error with a classification code.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("asr: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("asr: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
