package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig configures OpenAICompleter.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // optional, for OpenAI-compatible gateways
	Model       string
	Temperature float64
	MaxTokens   int64 // 0 = provider default
	// MaxRetries is the client retry count. Negative keeps the client default.
	MaxRetries int
}

// OpenAICompleter calls the chat completions API in JSON object mode.
type OpenAICompleter struct {
	config OpenAIConfig
	client *openai.Client
}

// NewOpenAICompleter creates a completer. The client is safe for concurrent use.
func NewOpenAICompleter(config OpenAIConfig, extra ...option.RequestOption) (*OpenAICompleter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}
	opts = append(opts, extra...)
	client := openai.NewClient(opts...)

	return &OpenAICompleter{config: config, client: &client}, nil
}

// Model returns the configured model name.
func (c *OpenAICompleter) Model() string {
	return c.config.Model
}

func (c *OpenAICompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Model:       shared.ChatModel(c.config.Model),
		Temperature: openai.Float(c.config.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	if c.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(c.config.MaxTokens)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("completion error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	return &Completion{
		Text:             completion.Choices[0].Message.Content,
		Model:            completion.Model,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}, nil
}
