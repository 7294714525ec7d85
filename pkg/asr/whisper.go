package asr

import (
	"bytes"
	"context"
	"log"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// WhisperTranscriber implements Transcriber using OpenAI's Whisper API.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

// NewWhisperTranscriber creates a Whisper-backed transcriber.
// OPENAI_BASE_URL overrides the API endpoint when set.
func NewWhisperTranscriber(apiKey string) (*WhisperTranscriber, error) {
	if apiKey == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "OpenAI API key is required",
		}
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		clientConfig.BaseURL = baseURL
		log.Printf("[Whisper] Using BaseURL: %s", clientConfig.BaseURL)
	}

	return &WhisperTranscriber{
		client: openai.NewClientWithConfig(clientConfig),
		model:  openai.Whisper1,
	}, nil
}

// SetModel overrides the default whisper-1 model.
func (w *WhisperTranscriber) SetModel(model string) {
	w.model = model
}

// Transcribe sends the WAV utterance to the Whisper API and returns the
// transcript text, trimmed. The sample rate is carried by the WAV
// header; Whisper needs no separate declaration of it.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, wav []byte, sampleRate int, language string) (string, error) {
	if len(wav) == 0 {
		return "", &Error{
			Code:    ErrCodeInvalidAudio,
			Message: "audio data is empty",
		}
	}

	req := openai.AudioRequest{
		Model:    w.model,
		FilePath: "utterance.wav", // filename hint for the API
		Reader:   bytes.NewReader(wav),
		Language: language,
	}

	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", &Error{
			Code:    ErrCodeProviderError,
			Message: "Whisper API request failed",
			Err:     err,
		}
	}

	return strings.TrimSpace(resp.Text), nil
}

var _ Transcriber = (*WhisperTranscriber)(nil)
