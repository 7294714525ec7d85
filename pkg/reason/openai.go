package reason

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig holds configuration for the chat-completion responder.
type OpenAIConfig struct {
	APIKey    string
	Model     string // default "gpt-4o-mini"
	MaxTokens int    // 0 = API default
}

// OpenAIResponder implements Responder over the OpenAI chat completion
// API.
type OpenAIResponder struct {
	config OpenAIConfig
	client *openai.Client
}

// NewOpenAIResponder creates a chat-completion responder.
// OPENAI_BASE_URL overrides the API endpoint when set.
func NewOpenAIResponder(config OpenAIConfig) (*OpenAIResponder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIResponder{
		config: config,
		client: &client,
	}, nil
}

// Reply requests the next agent line given the full history.
func (r *OpenAIResponder) Reply(ctx context.Context, history *History) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, history.Len()+1)
	if sys := history.System(); sys != "" {
		messages = append(messages, openai.SystemMessage(sys))
	}
	for _, m := range history.Messages() {
		switch m.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    shared.ChatModel(r.config.Model),
	}
	if r.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(r.config.MaxTokens))
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		log.Printf("[Reason] completion returned no choices")
		return "", nil
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

var _ Responder = (*OpenAIResponder)(nil)
