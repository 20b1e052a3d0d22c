package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driven"
)

func TestSearch_NormalisesHybridRows(t *testing.T) {
	store := &mockSearchStore{hybridRows: []driven.HybridRow{
		{ID: "c1", Content: "first", Similarity: 0.9, LexicalScore: 0.4, CombinedScore: 0.65},
		{ID: "c2", Content: "second", Similarity: 0.7, LexicalScore: 0.6, CombinedScore: 0.65},
	}}
	r := NewHybridRetriever(store)

	candidates := r.Search(context.Background(), nil, "query", []float32{0.1}, 0.3, 10, 0.5)

	require.Len(t, candidates, 2)
	assert.Equal(t, "c1", candidates[0].ChunkID)
	assert.Equal(t, 0.9, candidates[0].SemanticScore)
	require.NotNil(t, candidates[0].LexicalScore)
	assert.Equal(t, 0.4, *candidates[0].LexicalScore)
	assert.Equal(t, 0.65, candidates[0].CombinedScore)
}

func TestSearch_BackendErrorFallsBack(t *testing.T) {
	store := &mockSearchStore{
		hybridErr: assertableError("backend down"),
		chunks: []domain.Chunk{
			{ID: "c1", Content: "alpha", Index: 0},
			{ID: "c2", Content: "beta", Index: 1},
		},
	}
	r := NewHybridRetriever(store)

	candidates := r.Search(context.Background(), nil, "query", nil, 0.3, 10, 0.5)

	require.Len(t, candidates, 2, "fallback must yield candidates instead of raising")
	assert.Equal(t, "c1", candidates[0].ChunkID)
	assert.Zero(t, candidates[0].CombinedScore)
	assert.Nil(t, candidates[0].LexicalScore, "fallback candidates carry no lexical score")
}

func TestSearch_ZeroRowsFallsBack(t *testing.T) {
	store := &mockSearchStore{
		chunks: []domain.Chunk{{ID: "c1", Content: "alpha"}},
	}
	r := NewHybridRetriever(store)

	candidates := r.Search(context.Background(), nil, "query", nil, 0.3, 10, 0.5)

	require.Len(t, candidates, 1)
	assert.Equal(t, 1, store.listCalls)
}

func TestSearch_FallbackErrorYieldsEmpty(t *testing.T) {
	store := &mockSearchStore{
		hybridErr: assertableError("backend down"),
		listErr:   assertableError("also down"),
	}
	r := NewHybridRetriever(store)

	candidates := r.Search(context.Background(), nil, "query", nil, 0.3, 10, 0.5)

	assert.Empty(t, candidates, "both paths failing degrades to empty, never panics or raises")
}

func TestSearch_RespectsLimit(t *testing.T) {
	store := &mockSearchStore{
		hybridErr: assertableError("backend down"),
		chunks: []domain.Chunk{
			{ID: "c1"}, {ID: "c2"}, {ID: "c3"}, {ID: "c4"},
		},
	}
	r := NewHybridRetriever(store)

	candidates := r.Search(context.Background(), nil, "query", nil, 0.3, 2, 0.5)

	assert.Len(t, candidates, 2)
}

func TestSearch_NilStore(t *testing.T) {
	r := NewHybridRetriever(nil)

	assert.Empty(t, r.Search(context.Background(), nil, "query", nil, 0.3, 10, 0.5))
}
