package knowledge

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medassistd/internal/logging"
)

var tracer = otel.Tracer("medassistd/knowledge")

// ChromemStore is the embedded vector store. It persists to a local
// directory, so a single-node deployment needs no external services.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	logger     *logging.Logger
}

// NewChromemStore opens (or creates) the persistent database and its
// collection.
func NewChromemStore(path, collectionName string, compress bool, embedder Embedder, logger *logging.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if path == "" {
		return nil, fmt.Errorf("chromem path required")
	}
	if collectionName == "" {
		return nil, fmt.Errorf("collection name required")
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", collectionName, err)
	}

	logger.Info(context.Background(), "knowledge store: chromem ready",
		zap.String("path", path),
		zap.String("collection", collectionName),
		zap.Int("documents", collection.Count()),
	)

	return &ChromemStore{
		db:         db,
		collection: collection,
		embedder:   embedder,
		logger:     logger.Named("knowledge"),
	}, nil
}

// Add embeds and stores the documents.
func (s *ChromemStore) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document at index %d has no id", i)
		}
		metadata := map[string]string{"source": doc.Source}
		for k, v := range doc.Metadata {
			metadata[k] = fmt.Sprintf("%v", v)
		}
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  metadata,
			Embedding: vectors[i],
		}
	}

	// Concurrency of 1: embeddings are already computed above.
	if err := s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Debug(ctx, "added documents", zap.Int("count", len(docs)))
	return nil
}

// Search returns the k nearest passages. chromem requires k <= corpus
// size, so k is capped here.
func (s *ChromemStore) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	ctx, span := tracer.Start(ctx, "knowledge.Search",
		trace.WithAttributes(attribute.Int("k", k), attribute.String("backend", "chromem")))
	defer span.End()

	count := s.collection.Count()
	if count == 0 {
		return []Passage{}, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	passages := make([]Passage, len(results))
	for i, r := range results {
		passages[i] = Passage{
			ID:      r.ID,
			Content: r.Content,
			Source:  r.Metadata["source"],
			Score:   r.Similarity,
		}
	}
	return passages, nil
}

// Count reports the collection size.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.collection.Count(), nil
}

var _ Store = (*ChromemStore)(nil)
