package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"paper-backend/internal/llm"
	"paper-backend/internal/paper"
	"paper-backend/internal/shared/telemetry"
)

const maxTokens = 1024

// Client implements llm.MetadataClient over the Anthropic Messages API.
type Client struct {
	api   anthropic.Client
	model string
}

// NewClient constructs a Client. Extra request options are appended after the key.
func NewClient(apiKey, model string, opts ...option.RequestOption) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for Anthropic")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		api:   anthropic.NewClient(all...),
		model: strings.TrimSpace(model),
	}, nil
}

// ExtractMetadata asks the model for the paper's descriptive metadata.
func (c *Client) ExtractMetadata(ctx context.Context, text string) (paper.Metadata, error) {
	resp, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: llm.MetadataSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(llm.BuildMetadataPrompt(text))),
		},
	})
	if err != nil {
		return paper.Metadata{}, fmt.Errorf("anthropic chat: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	telemetry.Info("llm.response", map[string]any{
		"provider":      "anthropic",
		"model":         c.model,
		"op":            "metadata",
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	})
	if strings.TrimSpace(b.String()) == "" {
		return paper.Metadata{}, fmt.Errorf("anthropic response empty content")
	}
	return llm.ParseMetadata(b.String())
}

var _ llm.MetadataClient = (*Client)(nil)
