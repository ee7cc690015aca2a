// Package embedder provides text embedding clients for query-time vector
// search. Entity embeddings arrive pre-computed from extraction; these
// clients only embed ad hoc query text.
package embedder

import (
	"context"
	"fmt"

	"github.com/soundprediction/consolidato/pkg/config"
)

// Client generates vector embeddings for text.
type Client interface {
	// Embed generates embeddings for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the number of dimensions in the embeddings.
	Dimensions() int

	// Close cleans up any resources.
	Close() error
}

// New creates an embedding client from configuration.
func New(cfg config.EmbeddingConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg)
	case "embedeverything", "":
		return NewEmbedEverythingClient(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
