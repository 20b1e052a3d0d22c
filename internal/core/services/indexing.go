package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driven"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driving"
	"github.com/tsumiki-ai/ragcore/internal/logger"
)

// Ensure IndexingService implements the interface.
var _ driving.Indexer = (*IndexingService)(nil)

// embedBatchSize is the embedding concurrency window. Batches run
// sequentially; calls within a batch run in parallel. Small to respect
// provider rate limits.
const embedBatchSize = 3

// IndexingService rebuilds a document's retrievable chunk set.
type IndexingService struct {
	chunker  *ChunkingEngine
	store    driven.SearchStore
	embedder driven.EmbeddingService
}

// NewIndexingService creates a new indexing service.
func NewIndexingService(
	chunker *ChunkingEngine,
	store driven.SearchStore,
	embedder driven.EmbeddingService,
) *IndexingService {
	return &IndexingService{
		chunker:  chunker,
		store:    store,
		embedder: embedder,
	}
}

// Reindex fully replaces the chunk set for a document: delete, chunk,
// embed, bulk upsert. A chunk whose embedding call fails is logged and
// skipped; the error is fatal only when every chunk fails.
func (s *IndexingService) Reindex(ctx context.Context, documentID, content string) error {
	logger.Section("Reindex")
	logger.Debug("Document: %s (%d bytes)", documentID, len(content))

	if documentID == "" {
		return fmt.Errorf("reindex: %w: empty document ID", domain.ErrInvalidInput)
	}
	if s.store == nil {
		return fmt.Errorf("reindex: %w", domain.ErrSearchUnavailable)
	}
	if s.embedder == nil {
		return fmt.Errorf("reindex: %w", domain.ErrEmbeddingUnavailable)
	}

	// Delete-then-insert: the chunk set is replaced wholesale, never
	// partially patched.
	if err := s.store.DeleteChunks(ctx, documentID); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", documentID, err)
	}

	texts := s.chunker.Split(content)
	logger.Info("Chunked %s into %d chunks", documentID, len(texts))
	if len(texts) == 0 {
		return nil
	}

	embedded := s.embedAll(ctx, documentID, texts)
	if len(embedded) == 0 {
		return fmt.Errorf("reindex %s: %w", documentID, domain.ErrEmbeddingFailed)
	}
	if len(embedded) < len(texts) {
		logger.Warn("Reindex %s: %d of %d chunks failed to embed and were skipped",
			documentID, len(texts)-len(embedded), len(texts))
	}

	if err := s.store.UpsertChunks(ctx, embedded); err != nil {
		return fmt.Errorf("upsert chunks for %s: %w", documentID, err)
	}

	logger.Info("Reindexed %s: %d chunks stored", documentID, len(embedded))
	return nil
}

// embedAll embeds chunk texts in sequential batches of embedBatchSize,
// each batch fully parallel internally. Survivors keep document order and
// are renumbered contiguously.
func (s *IndexingService) embedAll(ctx context.Context, documentID string, texts []string) []domain.Chunk {
	vectors := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				vec, err := s.embedder.Embed(ctx, texts[i])
				if err != nil {
					logger.Warn("Embed chunk %d of %s failed: %v", i, documentID, err)
					return
				}
				if len(vec) == 0 {
					// An empty vector is a provider failure, not a valid embedding.
					logger.Warn("Embed chunk %d of %s returned empty vector", i, documentID)
					return
				}
				vectors[i] = vec
			}(i)
		}
		wg.Wait()
	}

	now := time.Now().UTC()
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		if vectors[i] == nil {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Index:      len(chunks),
			Content:    text,
			Embedding:  vectors[i],
			UpdatedAt:  now,
		})
	}

	return chunks
}
