package services

import (
	"context"
	"sync"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driven"
)

// --- Shared mock implementations for service tests ---

// mockSearchStore implements driven.SearchStore.
type mockSearchStore struct {
	mu sync.Mutex

	hybridRows []driven.HybridRow
	hybridErr  error
	vectorRows []driven.VectorRow
	vectorErr  error
	chunks     []domain.Chunk
	listErr    error
	deleteErr  error
	upsertErr  error

	hybridCalls int
	listCalls   int
	deleted     []string
	upserted    [][]domain.Chunk
}

func (m *mockSearchStore) SearchHybrid(
	_ context.Context, _ *string, _ string, _ []float32, threshold float64, limit int, _ float64,
) ([]driven.HybridRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hybridCalls++
	if m.hybridErr != nil {
		return nil, m.hybridErr
	}
	var rows []driven.HybridRow
	for _, row := range m.hybridRows {
		if row.Similarity >= threshold {
			rows = append(rows, row)
		}
	}
	if limit < len(rows) {
		return rows[:limit], nil
	}
	return rows, nil
}

func (m *mockSearchStore) SearchVector(
	_ context.Context, _ *string, _ []float32, _ float64, limit int,
) ([]driven.VectorRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vectorErr != nil {
		return nil, m.vectorErr
	}
	if limit < len(m.vectorRows) {
		return m.vectorRows[:limit], nil
	}
	return m.vectorRows, nil
}

func (m *mockSearchStore) DeleteChunks(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, documentID)
	return nil
}

func (m *mockSearchStore) UpsertChunks(_ context.Context, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, chunks)
	return nil
}

func (m *mockSearchStore) ListChunks(_ context.Context, _ *string, limit int) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	if limit < len(m.chunks) {
		return m.chunks[:limit], nil
	}
	return m.chunks, nil
}

func (m *mockSearchStore) Close() error { return nil }

// mockEmbedder implements driven.EmbeddingService.
type mockEmbedder struct {
	mu sync.Mutex

	vec       []float32
	failTexts map[string]bool
	err       error
	batchErr  error
	calls     []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, text)
	if m.err != nil {
		return nil, m.err
	}
	if m.failTexts[text] {
		return nil, domain.ErrRateLimited
	}
	if m.vec == nil {
		return []float32{0.1, 0.2, 0.3}, nil
	}
	return m.vec, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int              { return 3 }
func (m *mockEmbedder) ModelName() string            { return "mock-embed" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error                 { return nil }

// mockReply is one scripted completion.
type mockReply struct {
	text string
	err  error
}

// mockLLM implements driven.GenerationService with a scripted reply queue.
type mockLLM struct {
	mu sync.Mutex

	queue      []mockReply
	reply      string
	err        error
	completeFn func(messages []driven.ChatMessage, opts driven.CompleteOptions) (string, error)

	calls    int
	lastOpts driven.CompleteOptions
}

func (m *mockLLM) Complete(
	_ context.Context, messages []driven.ChatMessage, opts driven.CompleteOptions,
) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastOpts = opts
	if m.completeFn != nil {
		return m.completeFn(messages, opts)
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next.text, next.err
	}
	return m.reply, m.err
}

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockLLM) ModelName() string            { return "mock-llm" }
func (m *mockLLM) Ping(_ context.Context) error { return nil }
func (m *mockLLM) Close() error                 { return nil }
