package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/soundprediction/consolidato/pkg/config"
)

// OpenAIClient implements Client against the OpenAI embeddings API.
type OpenAIClient struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dims   int
}

// NewOpenAIClient creates a new OpenAI embedding client.
func NewOpenAIClient(cfg config.EmbeddingConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedding provider requires an API key")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(model),
		dims:   cfg.Dimensions,
	}, nil
}

// Embed implements Client.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

// EmbedSingle implements Client.
func (c *OpenAIClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}

// Dimensions implements Client.
func (c *OpenAIClient) Dimensions() int {
	return c.dims
}

// Close implements Client.
func (c *OpenAIClient) Close() error {
	return nil
}
