package knowledge

import (
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"

	"github.com/fyrsmithlabs/medassistd/internal/config"
	"github.com/fyrsmithlabs/medassistd/internal/logging"
)

// NewStore selects the knowledge backend from configuration. chromem is
// the default; qdrant serves deployments with an existing vector database.
func NewStore(cfg config.KnowledgeConfig, embedder lcembeddings.Embedder, logger *logging.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "chromem":
		return NewChromemStore(cfg.Path, cfg.Collection, cfg.Compress, embedder, logger)
	case "qdrant":
		return NewQdrantStore(cfg.QdrantURL, cfg.Collection, embedder)
	default:
		return nil, fmt.Errorf("unknown knowledge backend %q", cfg.Backend)
	}
}
