// Package rag implements grounded question answering over the knowledge
// store: embedding, retrieval, context assembly and answer generation.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"
)

// Gemini embedding task types. Asymmetric embedding: documents and
// queries are embedded with different task hints so they land in
// comparable regions of the vector space.
const (
	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

// ErrEmptyInput indicates an attempt to embed an empty string.
var ErrEmptyInput = errors.New("cannot embed empty input")

// Embedder produces fixed-dimension embeddings for documents and queries.
//
// Transport failures and malformed responses do not surface as errors:
// the embedder logs and returns the all-zero vector, so ingestion and
// querying keep working (a zero vector ranks last under cosine). Only
// invalid input is an error.
type Embedder struct {
	embedder ai.Embedder
	dim      int
	logger   *slog.Logger
}

// NewEmbedder creates an Embedder with a fixed output dimension.
func NewEmbedder(embedder ai.Embedder, dim int, logger *slog.Logger) (*Embedder, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{embedder: embedder, dim: dim, logger: logger}, nil
}

// Dimension reports the fixed output dimension.
func (e *Embedder) Dimension() int { return e.dim }

// EmbedDocument embeds text for storage.
func (e *Embedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	return e.embed(ctx, text, taskDocument), nil
}

// EmbedQuery embeds a question for retrieval.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	return e.embed(ctx, text, taskQuery), nil
}

// embed calls the model and degrades to the zero vector on any failure.
func (e *Embedder) embed(ctx context.Context, text, task string) []float32 {
	dim := int32(e.dim) //nolint:gosec // dim validated positive and small at construction

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{
			TaskType:             task,
			OutputDimensionality: &dim,
		},
	})
	if err != nil {
		e.logger.Warn("embedding failed, using zero vector", "task", task, "error", err)
		return make([]float32, e.dim)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		e.logger.Warn("empty embedding response, using zero vector", "task", task)
		return make([]float32, e.dim)
	}

	vec := resp.Embeddings[0].Embedding
	if len(vec) != e.dim {
		e.logger.Warn("embedding has unexpected dimension, using zero vector",
			"got", len(vec), "want", e.dim)
		return make([]float32, e.dim)
	}
	return vec
}
