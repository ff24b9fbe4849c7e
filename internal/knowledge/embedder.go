package knowledge

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/medassistd/internal/config"
)

// Embedder turns text into vectors. It matches langchaingo's embedder
// surface so one implementation serves both backends.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// NewEmbedder builds the production embedder over an OpenAI-compatible
// endpoint (OpenAI itself or a local TEI server).
func NewEmbedder(cfg config.EmbeddingsConfig) (lcembeddings.Embedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embeddings base_url required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embeddings model required")
	}

	apiKey := cfg.APIKey.Value()
	if apiKey == "" {
		// langchaingo requires a token even for keyless local servers.
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embeddings client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return embedder, nil
}
