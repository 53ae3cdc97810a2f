package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ragweb/ragweb/internal/knowledge"
)

const (
	// noDocumentsAnswer is returned when retrieval finds nothing.
	// The generator is not called in that case.
	noDocumentsAnswer = "I could not find any relevant documents to answer your question. " +
		"Try adding documents to the knowledge base first."

	// degradedAnswer is returned when the generator fails after a
	// successful retrieval. Askers get a usable response, not an error.
	degradedAnswer = "I found relevant documents but could not generate an answer right now. " +
		"Please try again."
)

// answerPromptFormat is the grounding instruction wrapped around the
// assembled context. The model is told to answer from the context only.
const answerPromptFormat = `Based on the following context, answer the question. If the context does not contain the answer, say so.

Context:
%s

Question: %s

Answer:`

// DocumentStore is the full store surface the system needs.
type DocumentStore interface {
	Searcher
	Insert(ctx context.Context, doc *knowledge.Document) (int64, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// Source identifies a document that grounded an answer.
type Source struct {
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

// Answer is the result of asking a question.
type Answer struct {
	Text      string    `json:"text"`
	Sources   []Source  `json:"sources,omitempty"`
	Skipped   int       `json:"skipped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config bundles the system's dependencies and tuning.
type Config struct {
	Store     DocumentStore
	Embedder  *Embedder
	Generator Generator
	Logger    *slog.Logger

	// TopK is how many documents ground each answer.
	TopK int

	// MaxContextChars is the prompt context character budget.
	MaxContextChars int
}

// System is the question answering and ingestion facade.
//
// It is explicitly constructed and carries no global state; one System
// per store connection, same concurrency contract as the store.
type System struct {
	store     DocumentStore
	embedder  *Embedder
	retriever *Retriever
	generator Generator
	topK      int
	budget    int
	logger    *slog.Logger
}

// New creates a System from its dependencies.
func New(cfg Config) (*System, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("top-k must be positive, got %d", cfg.TopK)
	}
	if cfg.MaxContextChars <= 0 {
		return nil, fmt.Errorf("context budget must be positive, got %d", cfg.MaxContextChars)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retriever, err := NewRetriever(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	return &System{
		store:     cfg.Store,
		embedder:  cfg.Embedder,
		retriever: retriever,
		generator: cfg.Generator,
		topK:      cfg.TopK,
		budget:    cfg.MaxContextChars,
		logger:    logger,
	}, nil
}

// AddDocument validates, embeds and stores a document, returning its ID.
// Embedding failure does not block ingestion; the document is stored
// with a zero vector and will rank last in similarity searches.
func (s *System) AddDocument(ctx context.Context, title, content string, metadata map[string]string) (int64, error) {
	doc, err := knowledge.NewDocument(title, content, metadata)
	if err != nil {
		return 0, err
	}

	embedding, err := s.embedder.EmbedDocument(ctx, content)
	if err != nil {
		return 0, err
	}
	doc.Embedding = embedding

	id, err := s.store.Insert(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("storing document: %w", err)
	}

	s.logger.Info("document added", "id", id, "title", title)
	return id, nil
}

// ListDocuments returns stored documents, newest first.
func (s *System) ListDocuments(ctx context.Context) ([]knowledge.Result, error) {
	results, err := s.store.Search(ctx, knowledge.Query{})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return results, nil
}

// SearchDocuments filters stored documents by title substring and
// exact metadata matches.
func (s *System) SearchDocuments(ctx context.Context, titleFilter string, metadata map[string]string) ([]knowledge.Result, error) {
	results, err := s.store.Search(ctx, knowledge.Query{
		TitleFilter: titleFilter,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	return results, nil
}

// DeleteDocument removes a document. Returns false when it did not exist.
func (s *System) DeleteDocument(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("document deleted", "id", id)
	}
	return deleted, nil
}

// Count returns the number of stored documents.
func (s *System) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// Ask answers a question grounded in the stored documents.
//
// Pipeline: embed the question, retrieve the top-K similar documents,
// assemble the budgeted context, generate. With zero retrieved
// documents the generator is skipped and a fixed answer returned.
// Generator failure degrades to a fixed answer too; Ask only errors on
// invalid input or storage failure.
func (s *System) Ask(ctx context.Context, question string) (Answer, error) {
	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	results, skipped, err := s.retriever.Retrieve(ctx, vector, s.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving documents: %w", err)
	}

	answer := Answer{
		Skipped:   skipped,
		Timestamp: time.Now().UTC(),
	}

	if len(results) == 0 {
		answer.Text = noDocumentsAnswer
		return answer, nil
	}

	for _, r := range results {
		answer.Sources = append(answer.Sources, Source{
			Title:      r.Document.Title,
			Similarity: r.Similarity,
		})
	}

	contextText := BuildContext(results, s.budget)
	prompt := fmt.Sprintf(answerPromptFormat, contextText, question)

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("answer generation failed", "error", err)
		answer.Text = degradedAnswer
		return answer, nil
	}

	answer.Text = text
	return answer, nil
}
