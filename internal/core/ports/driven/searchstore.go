package driven

import (
	"context"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
)

// SearchStore persists chunks and serves the two retrieval RPC modes.
// Backed by SQLite (FTS5 for BM25 keyword scoring, BLOB vectors for
// cosine similarity).
//
// Both search modes accept documentID == nil to mean "search everything".
// Rows are returned as tagged per-mode types; callers normalise them into
// domain.RetrievedCandidate immediately after the call boundary.
type SearchStore interface {
	// SearchHybrid linearly combines semantic and lexical relevance using
	// weight alpha (0 = pure lexical, 1 = pure semantic). Rows with
	// semantic similarity below threshold are excluded.
	SearchHybrid(ctx context.Context, documentID *string, query string, embedding []float32,
		threshold float64, limit int, alpha float64) ([]HybridRow, error)

	// SearchVector ranks by semantic similarity alone.
	SearchVector(ctx context.Context, documentID *string, embedding []float32,
		threshold float64, limit int) ([]VectorRow, error)

	// DeleteChunks removes every chunk belonging to a document.
	DeleteChunks(ctx context.Context, documentID string) error

	// UpsertChunks writes a batch of chunks in one transaction.
	UpsertChunks(ctx context.Context, chunks []domain.Chunk) error

	// ListChunks returns up to limit chunks ordered by chunk index.
	// documentID == nil lists across all documents. This is the unranked
	// fallback path when search itself is unavailable.
	ListChunks(ctx context.Context, documentID *string, limit int) ([]domain.Chunk, error)

	// Close releases resources.
	Close() error
}

// HybridRow is one hit from the hybrid RPC.
type HybridRow struct {
	// ID is the matched chunk.
	ID string

	// Content is the chunk text.
	Content string

	// Similarity is the cosine similarity (0-1).
	Similarity float64

	// LexicalScore is the normalised BM25 score (0-1).
	LexicalScore float64

	// CombinedScore is alpha*Similarity + (1-alpha)*LexicalScore.
	CombinedScore float64
}

// VectorRow is one hit from the vector-only RPC.
type VectorRow struct {
	// ID is the matched chunk.
	ID string

	// Content is the chunk text.
	Content string

	// Similarity is the cosine similarity (0-1).
	Similarity float64
}
