package reason

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini responder.
type GeminiConfig struct {
	APIKey string
	Model  string // default "gemini-2.0-flash"
}

// GeminiResponder implements Responder over the Gemini API.
type GeminiResponder struct {
	config GeminiConfig
	client *genai.Client
}

// NewGeminiResponder creates a Gemini-backed responder.
func NewGeminiResponder(ctx context.Context, config GeminiConfig) (*GeminiResponder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGoogleAI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiResponder{config: config, client: client}, nil
}

// Reply requests the next agent line given the full history.
func (r *GeminiResponder) Reply(ctx context.Context, history *History) (string, error) {
	contents := make([]*genai.Content, 0, history.Len())
	for _, m := range history.Messages() {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	var cfg *genai.GenerateContentConfig
	if sys := history.System(); sys != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: sys}},
			},
		}
	}

	resp, err := r.client.Models.GenerateContent(ctx, r.config.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}

	return strings.TrimSpace(collectText(resp)), nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

var _ Responder = (*GeminiResponder)(nil)
