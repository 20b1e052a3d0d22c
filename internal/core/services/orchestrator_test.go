package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driven"
)

const validGeneration = `{
	"answer": "Plans start at ten dollars per month [1].",
	"citations": [
		{"citation_number": 1, "quoted_text": "ten dollars per month", "relevance": "states the price"}
	],
	"confidence": 0.8
}`

func hybridRow(id, content string, score float64) driven.HybridRow {
	return driven.HybridRow{ID: id, Content: content, Similarity: score, LexicalScore: score, CombinedScore: score}
}

// newTestOrchestrator wires an orchestrator over mocks, without expansion
// or reranking unless the test installs them.
func newTestOrchestrator(store *mockSearchStore, llm *mockLLM) *RAGOrchestrator {
	return NewRAGOrchestrator(
		NewHybridRetriever(store),
		NewQueryExpansionService(nil, &mockEmbedder{}),
		nil,
		llm,
		domain.DefaultSettings(),
	)
}

func TestGenerateCitedAnswer_HappyPath(t *testing.T) {
	store := &mockSearchStore{hybridRows: []driven.HybridRow{
		hybridRow("c1", "Plans start at ten dollars per month.", 0.9),
	}}
	llm := &mockLLM{reply: validGeneration}
	o := newTestOrchestrator(store, llm)

	answer, err := o.GenerateCitedAnswer(context.Background(), "pricing plans", domain.AnswerOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Plans start at ten dollars per month [1].", answer.Answer)
	assert.InDelta(t, 0.8, answer.Confidence, 1e-9)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "c1", answer.Sources[0].ID)
	assert.Equal(t, 1, answer.Sources[0].CitationNumber)
}

func TestGenerateCitedAnswer_EmptyContextShortCircuits(t *testing.T) {
	// No hybrid rows and no fallback chunks: the generation provider
	// must never be called.
	store := &mockSearchStore{}
	llm := &mockLLM{reply: validGeneration}
	o := newTestOrchestrator(store, llm)

	answer, err := o.GenerateCitedAnswer(context.Background(), "anything", domain.AnswerOptions{})
	require.NoError(t, err)

	assert.Zero(t, llm.callCount(), "provider must not be called on empty context")
	assert.Equal(t, NoInformationAnswer, answer.Answer)
	assert.Zero(t, answer.Confidence)
	assert.Empty(t, answer.Sources)
}

func TestGenerateCitedAnswer_RetriesParseFailure(t *testing.T) {
	store := &mockSearchStore{hybridRows: []driven.HybridRow{hybridRow("c1", "context", 0.9)}}
	llm := &mockLLM{queue: []mockReply{
		{text: "not json at all"},
		{text: validGeneration},
	}}
	o := newTestOrchestrator(store, llm)

	answer, err := o.GenerateCitedAnswer(context.Background(), "q", domain.AnswerOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, llm.callCount())
	assert.NotEmpty(t, answer.Answer)
}

func TestGenerateCitedAnswer_RetriesExhausted(t *testing.T) {
	store := &mockSearchStore{hybridRows: []driven.HybridRow{hybridRow("c1", "context", 0.9)}}
	llm := &mockLLM{reply: "{broken"}
	o := newTestOrchestrator(store, llm)

	_, err := o.GenerateCitedAnswer(context.Background(), "q", domain.AnswerOptions{})

	require.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.Equal(t, generateAttempts, llm.callCount())
}

func TestGenerateCitedAnswer_DropsUnknownCitationNumbers(t *testing.T) {
	store := &mockSearchStore{hybridRows: []driven.HybridRow{hybridRow("c1", "context", 0.9)}}
	llm := &mockLLM{reply: `{
		"answer": "answer [1][99]",
		"citations": [
			{"citation_number": 1, "quoted_text": "context", "relevance": "direct"},
			{"citation_number": 99, "quoted_text": "ghost", "relevance": "none"}
		],
		"confidence": 2.5
	}`}
	o := newTestOrchestrator(store, llm)

	answer, err := o.GenerateCitedAnswer(context.Background(), "q", domain.AnswerOptions{})
	require.NoError(t, err)

	require.Len(t, answer.Sources, 1)
	assert.Equal(t, 1, answer.Sources[0].CitationNumber)
	assert.Equal(t, 1.0, answer.Confidence, "confidence is clamped to [0,1]")
}

func TestGenerateCitedAnswer_VerificationRevisesOnce(t *testing.T) {
	store := &mockSearchStore{hybridRows: []driven.HybridRow{hybridRow("c1", "context", 0.9)}}
	llm := &mockLLM{queue: []mockReply{
		{text: validGeneration},
		{text: `{"answer": "Revised answer [1].", "confidence": 0.6}`},
	}}
	o := newTestOrchestrator(store, llm)

	answer, err := o.GenerateCitedAnswer(context.Background(), "q", domain.AnswerOptions{UseVerification: true})
	require.NoError(t, err)

	assert.Equal(t, 2, llm.callCount())
	assert.Equal(t, "Revised answer [1].", answer.Answer)
	assert.InDelta(t, 0.6, answer.Confidence, 1e-9)
	require.Len(t, answer.Sources, 1, "verification does not touch sources")
}

func TestGenerateCitedAnswer_VerificationFailureKeepsDraft(t *testing.T) {
	store := &mockSearchStore{hybridRows: []driven.HybridRow{hybridRow("c1", "context", 0.9)}}
	llm := &mockLLM{queue: []mockReply{
		{text: validGeneration},
		{text: "garbage reply"},
	}}
	o := newTestOrchestrator(store, llm)

	answer, err := o.GenerateCitedAnswer(context.Background(), "q", domain.AnswerOptions{UseVerification: true})
	require.NoError(t, err, "verification failure is never fatal")

	assert.Equal(t, "Plans start at ten dollars per month [1].", answer.Answer)
	assert.InDelta(t, 0.8, answer.Confidence, 1e-9)
}

func TestGenerateCitedAnswerCached_MemoisesRetrieval(t *testing.T) {
	store := &mockSearchStore{hybridRows: []driven.HybridRow{hybridRow("c1", "context", 0.9)}}
	llm := &mockLLM{reply: validGeneration}
	o := newTestOrchestrator(store, llm)
	cache := NewRetrievalCache()

	_, err := o.GenerateCitedAnswerCached(context.Background(), cache, "q", domain.AnswerOptions{})
	require.NoError(t, err)
	_, err = o.GenerateCitedAnswerCached(context.Background(), cache, "q", domain.AnswerOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, store.hybridCalls, "second call must hit the request cache")
}

func TestGenerateCitedAnswerCached_ThresholdScopesMemoisation(t *testing.T) {
	store := &mockSearchStore{hybridRows: []driven.HybridRow{
		hybridRow("c1", "Annual plans include a discount.", 0.9),
		hybridRow("c2", "The office dress code is casual.", 0.4),
	}}
	var prompts []string
	llm := &mockLLM{completeFn: func(messages []driven.ChatMessage, _ driven.CompleteOptions) (string, error) {
		prompts = append(prompts, messages[len(messages)-1].Content)
		return validGeneration, nil
	}}
	o := newTestOrchestrator(store, llm)
	cache := NewRetrievalCache()

	_, err := o.GenerateCitedAnswerCached(context.Background(), cache, "plans",
		domain.AnswerOptions{Threshold: floatPtr(0.3)})
	require.NoError(t, err)
	_, err = o.GenerateCitedAnswerCached(context.Background(), cache, "plans",
		domain.AnswerOptions{Threshold: floatPtr(0.5)})
	require.NoError(t, err)

	assert.Equal(t, 2, store.hybridCalls, "a different threshold must not replay the cached merge")
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "dress code")
	assert.NotContains(t, prompts[1], "dress code", "chunks below the stricter threshold must not leak from the cache")
}

func TestGenerateCitedAnswerCached_ExpansionModeScopesMemoisation(t *testing.T) {
	store := &mockSearchStore{hybridRows: []driven.HybridRow{hybridRow("c1", "context", 0.9)}}
	llm := &mockLLM{reply: validGeneration}
	o := newTestOrchestrator(store, llm)
	cache := NewRetrievalCache()

	_, err := o.GenerateCitedAnswerCached(context.Background(), cache, "q", domain.AnswerOptions{})
	require.NoError(t, err)
	singleQueryCalls := store.hybridCalls
	_, err = o.GenerateCitedAnswerCached(context.Background(), cache, "q", domain.AnswerOptions{UseExpansion: true})
	require.NoError(t, err)

	assert.Greater(t, store.hybridCalls, singleQueryCalls, "toggling expansion must not replay the cached merge")
}

func TestApplyDefaults_ExplicitZeroWeightsSurvive(t *testing.T) {
	o := newTestOrchestrator(&mockSearchStore{}, &mockLLM{})

	resolved := o.applyDefaults(domain.AnswerOptions{Alpha: floatPtr(0), Threshold: floatPtr(0)})
	assert.Zero(t, *resolved.Alpha, "explicit zero alpha means pure lexical, not the default")
	assert.Zero(t, *resolved.Threshold, "explicit zero threshold admits every candidate")

	defaulted := o.applyDefaults(domain.AnswerOptions{})
	assert.InDelta(t, domain.DefaultAlpha, *defaulted.Alpha, 1e-9)
	assert.InDelta(t, domain.DefaultThreshold, *defaulted.Threshold, 1e-9)
}

func TestGenerateCitedAnswer_DuplicateTextsKeepDistinctSources(t *testing.T) {
	// The same passage text can be indexed under two documents; each
	// citation must point at the chunk that actually backed it.
	const text = "Refunds are processed within five business days."
	store := &mockSearchStore{hybridRows: []driven.HybridRow{
		hybridRow("policy-eu-c3", text, 0.9),
		hybridRow("policy-us-c7", text, 0.8),
	}}
	llm := &mockLLM{reply: `{
		"answer": "Refunds take five business days [1][2].",
		"citations": [
			{"citation_number": 1, "quoted_text": "five business days", "relevance": "direct"},
			{"citation_number": 2, "quoted_text": "five business days", "relevance": "direct"}
		],
		"confidence": 0.9
	}`}
	o := NewRAGOrchestrator(
		NewHybridRetriever(store),
		NewQueryExpansionService(nil, &mockEmbedder{}),
		NewReranker(nil),
		llm,
		domain.DefaultSettings(),
	)

	answer, err := o.GenerateCitedAnswer(context.Background(), "refund timing", domain.AnswerOptions{})
	require.NoError(t, err)

	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "policy-eu-c3", answer.Sources[0].ID)
	assert.Equal(t, "policy-us-c7", answer.Sources[1].ID)
}

func TestGenerateCitedAnswer_EmptyQuery(t *testing.T) {
	o := newTestOrchestrator(&mockSearchStore{}, &mockLLM{})

	_, err := o.GenerateCitedAnswer(context.Background(), "   ", domain.AnswerOptions{})

	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGenerateCitedAnswer_StructuredModeRequested(t *testing.T) {
	store := &mockSearchStore{hybridRows: []driven.HybridRow{hybridRow("c1", "context", 0.9)}}
	llm := &mockLLM{reply: validGeneration}
	o := newTestOrchestrator(store, llm)

	_, err := o.GenerateCitedAnswer(context.Background(), "q", domain.AnswerOptions{})
	require.NoError(t, err)

	require.NotNil(t, llm.lastOpts.Schema)
	assert.Equal(t, "cited_answer", llm.lastOpts.Schema.Name)
}
