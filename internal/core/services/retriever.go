package services

import (
	"context"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driven"
	"github.com/tsumiki-ai/ragcore/internal/logger"
)

// retrievalStrategy is one attempt at producing candidates. It reports
// false when the next strategy in the chain should be tried.
type retrievalStrategy func(ctx context.Context) ([]domain.RetrievedCandidate, bool)

// HybridRetriever issues a single query against the search backend,
// blending semantic and lexical relevance. Retrieval degrades gracefully:
// a backend failure falls through to an unranked chunk fetch rather than
// failing the caller.
type HybridRetriever struct {
	store driven.SearchStore
}

// NewHybridRetriever creates a new hybrid retriever.
func NewHybridRetriever(store driven.SearchStore) *HybridRetriever {
	return &HybridRetriever{store: store}
}

// Search runs the hybrid RPC for one query. documentID == nil searches
// across all documents; alpha weights semantic vs lexical relevance
// (0 = pure lexical, 1 = pure semantic). The returned slice is ordered by
// combined score and never exceeds limit; it is empty only when both the
// hybrid call and the fallback fetch produced nothing.
func (r *HybridRetriever) Search(
	ctx context.Context,
	documentID *string,
	query string,
	embedding []float32,
	threshold float64,
	limit int,
	alpha float64,
) []domain.RetrievedCandidate {
	if r.store == nil {
		logger.Warn("Retrieval unavailable: search store is nil")
		return nil
	}
	if limit <= 0 {
		limit = domain.DefaultSearchLimit
	}

	// Strategies are tried in order; the first that yields candidates wins.
	strategies := []retrievalStrategy{
		r.hybridStrategy(documentID, query, embedding, threshold, limit, alpha),
		r.fallbackStrategy(documentID, limit),
	}

	for _, strategy := range strategies {
		if candidates, ok := strategy(ctx); ok {
			return candidates
		}
	}

	return nil
}

// hybridStrategy queries the backend's hybrid RPC and normalises its rows.
func (r *HybridRetriever) hybridStrategy(
	documentID *string, query string, embedding []float32,
	threshold float64, limit int, alpha float64,
) retrievalStrategy {
	return func(ctx context.Context) ([]domain.RetrievedCandidate, bool) {
		rows, err := r.store.SearchHybrid(ctx, documentID, query, embedding, threshold, limit, alpha)
		if err != nil {
			logger.Warn("Hybrid search failed, trying fallback: %v", err)
			return nil, false
		}
		if len(rows) == 0 {
			logger.Debug("Hybrid search returned no rows, trying fallback")
			return nil, false
		}

		// Normalise tagged rows into candidates at the call boundary.
		candidates := make([]domain.RetrievedCandidate, len(rows))
		for i, row := range rows {
			lexical := row.LexicalScore
			candidates[i] = domain.RetrievedCandidate{
				ChunkID:       row.ID,
				Content:       row.Content,
				SemanticScore: row.Similarity,
				LexicalScore:  &lexical,
				CombinedScore: row.CombinedScore,
			}
		}

		logger.Debug("Hybrid search: %d candidates", len(candidates))
		return candidates, true
	}
}

// fallbackStrategy fetches up to limit chunks ordered by chunk index.
// Scores are zero; an error here yields an empty result, never a failure.
func (r *HybridRetriever) fallbackStrategy(documentID *string, limit int) retrievalStrategy {
	return func(ctx context.Context) ([]domain.RetrievedCandidate, bool) {
		chunks, err := r.store.ListChunks(ctx, documentID, limit)
		if err != nil {
			logger.Warn("Fallback chunk fetch failed: %v", err)
			return nil, true
		}

		candidates := make([]domain.RetrievedCandidate, len(chunks))
		for i, chunk := range chunks {
			candidates[i] = domain.RetrievedCandidate{
				ChunkID: chunk.ID,
				Content: chunk.Content,
			}
		}

		logger.Debug("Fallback fetch: %d unranked candidates", len(candidates))
		return candidates, true
	}
}
