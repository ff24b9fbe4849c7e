// Package knowledge provides the retrieval layer for grounded answers:
// an embedded chromem-go store by default, or a remote Qdrant collection,
// behind one Searcher interface.
package knowledge

import (
	"context"
	"errors"
)

var (
	// ErrEmptyQuery is returned for blank search queries.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrEmptyDocuments is returned when an Add receives nothing.
	ErrEmptyDocuments = errors.New("empty or nil documents")
	// ErrCountUnsupported marks backends that cannot report corpus size.
	ErrCountUnsupported = errors.New("count not supported by this backend")
)

// Passage is one retrieved snippet. Source is the citation string the
// assistant surfaces to users (document name plus section).
type Passage struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
}

// Document is an ingestion unit: a chunk of a source file plus citation
// metadata.
type Document struct {
	ID       string
	Content  string
	Source   string
	Metadata map[string]any
}

// Searcher is the read side used by the search tool.
type Searcher interface {
	// Search returns up to k passages most similar to the query, best
	// first. An empty corpus yields an empty slice, not an error.
	Search(ctx context.Context, query string, k int) ([]Passage, error)
}

// Store adds the write side used by ingestion.
type Store interface {
	Searcher
	Add(ctx context.Context, docs []Document) error
	// Count reports corpus size, or ErrCountUnsupported.
	Count(ctx context.Context) (int, error)
}
