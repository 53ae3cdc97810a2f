// Package knowledge implements the document store for grounded Q&A.
//
// Documents carry a title, free-form content, a fixed-dimension embedding
// vector and optional string metadata. Storage is PostgreSQL through a
// single pgx connection; when the pgvector extension is available the
// store ranks similarity searches in SQL, otherwise embeddings live in a
// JSONB column and ranking happens in the retriever.
package knowledge

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyTitle indicates a document with an empty title.
	ErrEmptyTitle = errors.New("document title cannot be empty")

	// ErrEmptyContent indicates a document with empty content.
	ErrEmptyContent = errors.New("document content cannot be empty")

	// ErrDimensionMismatch indicates two vectors of different lengths.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotConnected indicates an operation on a closed or unconnected store.
	ErrNotConnected = errors.New("store is not connected")
)

// Document is a stored knowledge document.
// ID is assigned by the store on insert; CreatedAt by the database.
type Document struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"embedding,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewDocument creates a document, validating title and content.
// The embedding is attached later by the ingestion path.
func NewDocument(title, content string, metadata map[string]string) (*Document, error) {
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if content == "" {
		return nil, ErrEmptyContent
	}
	return &Document{
		Title:    title,
		Content:  content,
		Metadata: metadata,
	}, nil
}

// Result pairs a document with its similarity to a query vector.
// Similarity is cosine similarity in [-1, 1]; it is zero when the
// search was not vector-ranked.
type Result struct {
	Document   *Document `json:"document"`
	Similarity float64   `json:"similarity"`
}

// validateForInsert checks the document against the store's fixed dimension.
func (d *Document) validateForInsert(dim int) error {
	if d.Title == "" {
		return ErrEmptyTitle
	}
	if d.Content == "" {
		return ErrEmptyContent
	}
	if len(d.Embedding) != dim {
		return fmt.Errorf("%w: got %d, store requires %d",
			ErrDimensionMismatch, len(d.Embedding), dim)
	}
	return nil
}
