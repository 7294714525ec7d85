package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

const (
	openAITTSEndpoint   = "https://api.openai.com/v1/audio/speech"
	openAIDefaultModel  = "tts-1"
	openAIDefaultVoice  = "alloy"
	openAIPCMSampleRate = 24000 // the API's "pcm" response format is 24kHz s16le
)

var openAIVoices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// OpenAIProvider implements Provider for OpenAI's speech API, requesting
// raw PCM so the playback path needs no container parsing.
type OpenAIProvider struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// openAIRequest is the API request payload.
type openAIRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// NewOpenAIProvider creates a provider. An empty apiKey falls back to
// OPENAI_API_KEY; OPENAI_TTS_ENDPOINT overrides the API endpoint.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	endpoint := openAITTSEndpoint
	if e := os.Getenv("OPENAI_TTS_ENDPOINT"); e != "" {
		endpoint = e
	}

	return &OpenAIProvider{
		apiKey:     apiKey,
		model:      openAIDefaultModel,
		endpoint:   endpoint,
		httpClient: &http.Client{},
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// SetModel selects "tts-1" or "tts-1-hd".
func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// ValidateConfig checks that an API key is configured.
func (p *OpenAIProvider) ValidateConfig() error {
	if p.apiKey == "" {
		return fmt.Errorf("OpenAI API key not configured")
	}
	return nil
}

// Synthesize converts text to 24kHz mono PCM via the speech API.
func (p *OpenAIProvider) Synthesize(ctx context.Context, req *Request) (*Response, error) {
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	voice := req.Voice
	if voice == "" {
		voice = openAIDefaultVoice
	}

	payload := openAIRequest{
		Model:          p.model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: "pcm",
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("speech API failed with status %d: %s", resp.StatusCode, string(body))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{PCM: pcm, SampleRate: openAIPCMSampleRate}, nil
}

// Voices returns the voices the API accepts.
func (p *OpenAIProvider) Voices() []string {
	return openAIVoices
}

var _ Provider = (*OpenAIProvider)(nil)
