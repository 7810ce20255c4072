package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/spec-kit/ticket-intake/internal/config"
)

// LangchainClient talks to OpenAI or Azure OpenAI through langchaingo.
type LangchainClient struct {
	llm       llms.Model
	maxTokens int
}

// NewLangchainClient initializes the model for the configured provider.
func NewLangchainClient(cfg config.OracleConfig) (*LangchainClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key not configured", cfg.Provider)
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if strings.EqualFold(cfg.Provider, "azure") {
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("azure endpoint not configured")
		}
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithBaseURL(cfg.Endpoint),
			openai.WithAPIVersion(cfg.APIVersion),
		)
	} else if cfg.Endpoint != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return &LangchainClient{llm: model, maxTokens: cfg.MaxTokens}, nil
}

// Complete sends the prompt with temperature 0.
func (c *LangchainClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if system != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	callOpts := []llms.CallOption{llms.WithTemperature(0)}
	if c.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(c.maxTokens))
	}
	resp, err := c.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("LLM generation failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
