package knowledge

import (
	"context"
	"fmt"
	"net/url"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/tmc/langchaingo/vectorstores/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// QdrantStore is the remote backend for deployments that already run a
// vector database.
type QdrantStore struct {
	store vectorstores.VectorStore
}

// NewQdrantStore connects to a Qdrant collection via langchaingo.
func NewQdrantStore(rawURL, collectionName string, embedder lcembeddings.Embedder) (*QdrantStore, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("qdrant url required")
	}
	if collectionName == "" {
		return nil, fmt.Errorf("collection name required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	qdrantURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing qdrant URL: %w", err)
	}

	store, err := qdrant.New(
		qdrant.WithURL(*qdrantURL),
		qdrant.WithCollectionName(collectionName),
		qdrant.WithEmbedder(embedder),
	)
	if err != nil {
		return nil, fmt.Errorf("creating qdrant store: %w", err)
	}

	return &QdrantStore{store: store}, nil
}

func (s *QdrantStore) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}

	schemaDocs := make([]schema.Document, len(docs))
	for i, doc := range docs {
		metadata := map[string]any{
			"id":     doc.ID,
			"source": doc.Source,
		}
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		schemaDocs[i] = schema.Document{
			PageContent: doc.Content,
			Metadata:    metadata,
		}
	}

	if _, err := s.store.AddDocuments(ctx, schemaDocs); err != nil {
		return fmt.Errorf("adding documents to qdrant: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	ctx, span := tracer.Start(ctx, "knowledge.Search",
		trace.WithAttributes(attribute.Int("k", k), attribute.String("backend", "qdrant")))
	defer span.End()

	docs, err := s.store.SimilaritySearch(ctx, query, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	passages := make([]Passage, len(docs))
	for i, doc := range docs {
		p := Passage{
			Content: doc.PageContent,
			Score:   doc.Score,
		}
		if id, ok := doc.Metadata["id"].(string); ok {
			p.ID = id
		}
		if source, ok := doc.Metadata["source"].(string); ok {
			p.Source = source
		}
		passages[i] = p
	}
	return passages, nil
}

// Count is not available through langchaingo's qdrant surface.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	return 0, ErrCountUnsupported
}

var _ Store = (*QdrantStore)(nil)
