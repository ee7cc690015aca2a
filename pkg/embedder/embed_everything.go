package embedder

import (
	"context"
	"fmt"

	everything "github.com/soundprediction/go-embedeverything/pkg/embedder"

	"github.com/soundprediction/consolidato/pkg/config"
)

// EmbedEverythingClient implements Client on a local embedding model.
type EmbedEverythingClient struct {
	client *everything.Embedder
	dims   int
}

// NewEmbedEverythingClient creates a new EmbedEverything client.
func NewEmbedEverythingClient(cfg config.EmbeddingConfig) (*EmbedEverythingClient, error) {
	client, err := everything.NewEmbedder(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &EmbedEverythingClient{
		client: client,
		dims:   cfg.Dimensions,
	}, nil
}

// Embed implements Client.
func (e *EmbedEverythingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	// go-embedeverything does not support context yet
	embeddings, err := e.client.Embed(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	return embeddings, nil
}

// EmbedSingle implements Client.
func (e *EmbedEverythingClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}

// Dimensions implements Client.
func (e *EmbedEverythingClient) Dimensions() int {
	return e.dims
}

// Close implements Client.
func (e *EmbedEverythingClient) Close() error {
	e.client.Close()
	return nil
}
