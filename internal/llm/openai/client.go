package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"paper-backend/internal/llm"
	"paper-backend/internal/paper"
	"paper-backend/internal/shared/telemetry"
)

const defaultEmbeddingModel = "text-embedding-3-small"

// Client implements llm.MetadataClient and llm.Embedder over OpenAI.
type Client struct {
	api            *goopenai.Client
	model          string
	embeddingModel string
}

// NewClient constructs a new OpenAI client.
func NewClient(apiKey, model, embeddingModel string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: timeoutFromEnv()}
	return newWithConfig(cfg, model, embeddingModel), nil
}

// NewEmbedder constructs a client used only for embeddings.
func NewEmbedder(apiKey, embeddingModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: timeoutFromEnv()}
	return newWithConfig(cfg, "", embeddingModel), nil
}

func newWithConfig(cfg goopenai.ClientConfig, model, embeddingModel string) *Client {
	if strings.TrimSpace(embeddingModel) == "" {
		embeddingModel = defaultEmbeddingModel
	}
	return &Client{
		api:            goopenai.NewClientWithConfig(cfg),
		model:          strings.TrimSpace(model),
		embeddingModel: strings.TrimSpace(embeddingModel),
	}
}

func timeoutFromEnv() time.Duration {
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return timeout
}

// ExtractMetadata asks the chat model for the paper's descriptive metadata.
func (c *Client) ExtractMetadata(ctx context.Context, text string) (paper.Metadata, error) {
	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: llm.MetadataSystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: llm.BuildMetadataPrompt(text)},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if isGPT5(c.model) {
		req.MaxCompletionTokens = 1000
	} else {
		req.MaxTokens = 1000
		req.Temperature = 0.3
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return paper.Metadata{}, fmt.Errorf("openai chat: %w", err)
	}
	logUsage(c.model, "metadata", resp.Usage)
	if len(resp.Choices) == 0 {
		return paper.Metadata{}, fmt.Errorf("openai response missing choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return paper.Metadata{}, fmt.Errorf("openai response empty content")
	}
	return llm.ParseMetadata(content)
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	logUsage(c.embeddingModel, "embedding", resp.Usage)
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embedding response empty")
	}
	return resp.Data[0].Embedding, nil
}

func logUsage(model, op string, usage goopenai.Usage) {
	telemetry.Info("llm.response", map[string]any{
		"provider":          "openai",
		"model":             model,
		"op":                op,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
	})
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

var (
	_ llm.MetadataClient = (*Client)(nil)
	_ llm.Embedder       = (*Client)(nil)
)
