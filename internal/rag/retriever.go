package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ragweb/ragweb/internal/knowledge"
)

// Searcher is the slice of the knowledge store the retriever needs.
type Searcher interface {
	Search(ctx context.Context, q knowledge.Query) ([]knowledge.Result, error)
	Mode() knowledge.Mode
	Dimension() int
}

// Retriever returns the top-K most similar documents for a query vector.
//
// The ranking strategy is chosen once, from the store's backend mode:
// native-vector stores rank in SQL, JSON stores rank in-process.
type Retriever struct {
	strategy ranker
	logger   *slog.Logger
}

// ranker is the per-mode retrieval strategy. skipped counts candidates
// that could not be ranked (missing or mismatched embeddings).
type ranker interface {
	retrieve(ctx context.Context, vector []float32, k int) (results []knowledge.Result, skipped int, err error)
}

// NewRetriever creates a Retriever bound to the store's backend mode.
func NewRetriever(store Searcher, logger *slog.Logger) (*Retriever, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var strategy ranker
	if store.Mode() == knowledge.ModeNativeVector {
		strategy = &nativeRanking{store: store}
	} else {
		strategy = &inProcessRanking{store: store, logger: logger}
	}

	return &Retriever{strategy: strategy, logger: logger}, nil
}

// Retrieve returns up to k documents ordered by similarity descending,
// along with the number of candidates skipped during ranking.
// k <= 0 and an empty store both yield an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, k int) ([]knowledge.Result, int, error) {
	if k <= 0 {
		return []knowledge.Result{}, 0, nil
	}

	results, skipped, err := r.strategy.retrieve(ctx, vector, k)
	if err != nil {
		return nil, 0, err
	}
	if skipped > 0 {
		r.logger.Warn("candidates skipped during ranking", "skipped", skipped)
	}
	return results, skipped, nil
}

// nativeRanking trusts the store's SQL-side cosine ordering.
type nativeRanking struct {
	store Searcher
}

func (n *nativeRanking) retrieve(ctx context.Context, vector []float32, k int) ([]knowledge.Result, int, error) {
	results, err := n.store.Search(ctx, knowledge.Query{Vector: vector, Limit: k})
	if err != nil {
		return nil, 0, fmt.Errorf("native retrieval: %w", err)
	}
	return results, 0, nil
}

// inProcessRanking pulls candidates unranked and computes cosine
// similarity per candidate. Candidates whose embedding is missing or
// has the wrong dimension are skipped, never fatal.
type inProcessRanking struct {
	store  Searcher
	logger *slog.Logger
}

func (p *inProcessRanking) retrieve(ctx context.Context, vector []float32, k int) ([]knowledge.Result, int, error) {
	candidates, err := p.store.Search(ctx, knowledge.Query{Limit: knowledge.DefaultListLimit})
	if err != nil {
		return nil, 0, fmt.Errorf("loading candidates: %w", err)
	}

	ranked := make([]knowledge.Result, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		sim, err := knowledge.Cosine(vector, c.Document.Embedding)
		if err != nil {
			skipped++
			p.logger.Debug("skipping candidate",
				"id", c.Document.ID, "error", err)
			continue
		}
		c.Similarity = sim
		ranked = append(ranked, c)
	}

	// Similarity descending, newest first on ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Similarity != ranked[j].Similarity {
			return ranked[i].Similarity > ranked[j].Similarity
		}
		return ranked[i].Document.CreatedAt.After(ranked[j].Document.CreatedAt)
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, skipped, nil
}
