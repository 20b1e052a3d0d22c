package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
)

// tenParagraphDoc builds a document that chunks into exactly ten chunks,
// and returns the expected chunk texts.
func tenParagraphDoc() (string, []string) {
	var texts []string
	for i := 0; i < 10; i++ {
		texts = append(texts, fmt.Sprintf(
			"Paragraph number %d carries enough words to clear the minimum chunk size filter easily.", i))
	}
	return strings.Join(texts, "\n\n"), texts
}

func newTestIndexer(store *mockSearchStore, embedder *mockEmbedder) *IndexingService {
	return NewIndexingService(NewChunkingEngine(), store, embedder)
}

func TestReindex_StoresAllChunks(t *testing.T) {
	store := &mockSearchStore{}
	embedder := &mockEmbedder{}
	doc, texts := tenParagraphDoc()

	err := newTestIndexer(store, embedder).Reindex(context.Background(), "tpl-guide", doc)
	require.NoError(t, err)

	require.Equal(t, []string{"tpl-guide"}, store.deleted)
	require.Len(t, store.upserted, 1)
	stored := store.upserted[0]
	require.Len(t, stored, 10)
	for i, chunk := range stored {
		assert.Equal(t, "tpl-guide", chunk.DocumentID)
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, texts[i], chunk.Content)
		assert.NotEmpty(t, chunk.ID)
		assert.NotEmpty(t, chunk.Embedding)
	}
}

func TestReindex_SkipsFailedEmbeddings(t *testing.T) {
	doc, texts := tenParagraphDoc()
	store := &mockSearchStore{}
	embedder := &mockEmbedder{failTexts: map[string]bool{
		texts[2]: true,
		texts[7]: true,
	}}

	err := newTestIndexer(store, embedder).Reindex(context.Background(), "tpl-guide", doc)
	require.NoError(t, err)

	require.Len(t, store.upserted, 1)
	stored := store.upserted[0]
	require.Len(t, stored, 8)

	// Survivors keep document order and contiguous indexes.
	for i, chunk := range stored {
		assert.Equal(t, i, chunk.Index)
		assert.NotEqual(t, texts[2], chunk.Content)
		assert.NotEqual(t, texts[7], chunk.Content)
	}
}

func TestReindex_AllEmbeddingsFail(t *testing.T) {
	doc, _ := tenParagraphDoc()
	store := &mockSearchStore{}
	embedder := &mockEmbedder{err: domain.ErrRateLimited}

	err := newTestIndexer(store, embedder).Reindex(context.Background(), "tpl-guide", doc)

	require.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	assert.Empty(t, store.upserted, "nothing should be stored when every chunk fails")
	assert.Equal(t, []string{"tpl-guide"}, store.deleted, "old chunks are still deleted first")
}

func TestReindex_EmptyDocumentClearsChunks(t *testing.T) {
	store := &mockSearchStore{}
	embedder := &mockEmbedder{}

	err := newTestIndexer(store, embedder).Reindex(context.Background(), "tpl-empty", "   \n  ")
	require.NoError(t, err)

	assert.Equal(t, []string{"tpl-empty"}, store.deleted)
	assert.Empty(t, store.upserted)
	assert.Empty(t, embedder.calls)
}

func TestReindex_EmptyDocumentID(t *testing.T) {
	err := newTestIndexer(&mockSearchStore{}, &mockEmbedder{}).Reindex(context.Background(), "", "text")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestReindex_DeleteFailureAborts(t *testing.T) {
	store := &mockSearchStore{deleteErr: assertableError("boom")}
	embedder := &mockEmbedder{}
	doc, _ := tenParagraphDoc()

	err := newTestIndexer(store, embedder).Reindex(context.Background(), "tpl-guide", doc)

	require.Error(t, err)
	assert.Empty(t, embedder.calls, "no embedding should happen if delete fails")
}

// assertableError is a trivial error type for failure injection.
type assertableError string

func (e assertableError) Error() string { return string(e) }
