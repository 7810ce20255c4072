package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/spec-kit/ticket-intake/internal/config"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockClient invokes a Claude model hosted on AWS Bedrock.
type BedrockClient struct {
	client    *bedrockruntime.Client
	model     string
	maxTokens int
}

// NewBedrockClient loads AWS credentials from the environment or IAM role.
func NewBedrockClient(ctx context.Context, cfg config.OracleConfig) (*BedrockClient, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	model := cfg.Model
	if model == "" {
		model = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &BedrockClient{
		client:    bedrockruntime.NewFromConfig(awsCfg),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float64          `json:"temperature"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete invokes the model once.
func (c *BedrockClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        c.maxTokens,
		System:           system,
		Messages:         []bedrockMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to call Bedrock API: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode Bedrock response: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(text.String()), nil
}
