package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driven"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driving"
	"github.com/tsumiki-ai/ragcore/internal/logger"
)

// Ensure RAGOrchestrator implements the interface.
var _ driving.Answerer = (*RAGOrchestrator)(nil)

// NoInformationAnswer is returned when no context survives reranking.
const NoInformationAnswer = "No relevant information was found for this question."

// Generation retry policy: attempts with linearly increasing backoff.
// Retries cover generation/parse failures only; empty retrieval
// short-circuits instead.
const (
	generateAttempts = 3
	backoffBase      = 500 * time.Millisecond
)

// defaultAnswerSystemPrompt is the fallback when no PromptStore is
// configured.
const defaultAnswerSystemPrompt = `You answer questions using ONLY the numbered context passages provided.
Every claim in your answer must cite a passage by its number. Do not cite
numbers that are not in the context. Report your confidence honestly: low
when the context only partially covers the question.`

// defaultVerificationPrompt is the fallback when no PromptStore is
// configured.
const defaultVerificationPrompt = `Review the draft answer against the question and the context passages.
Fix unsupported claims and adjust the confidence to reflect how well the
context supports the answer.

Question: %s

Draft answer: %s

Context:
%s`

// generationReply is the schema-constrained shape of a generation call.
type generationReply struct {
	Answer    string `json:"answer"`
	Citations []struct {
		CitationNumber int    `json:"citation_number"`
		QuotedText     string `json:"quoted_text"`
		Relevance      string `json:"relevance"`
	} `json:"citations"`
	Confidence float64 `json:"confidence"`
}

// verificationReply is the schema-constrained shape of the verification
// pass.
type verificationReply struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// contextEntry is one numbered passage handed to the generation provider.
type contextEntry struct {
	number  int
	chunkID string
	content string
	score   float64
}

// RAGOrchestrator composes retrieval, reranking, and schema-constrained
// generation into a cited answer with an optional self-verification pass.
type RAGOrchestrator struct {
	retriever   *HybridRetriever
	expansion   *QueryExpansionService
	reranker    *Reranker
	llm         driven.GenerationService
	promptStore driven.PromptStore
	rules       []RewriteRule
	settings    domain.Settings
}

// NewRAGOrchestrator creates a new orchestrator. The expansion and
// reranker parameters are optional; without them the pipeline degrades to
// single-query retrieval and merge-order truncation respectively.
func NewRAGOrchestrator(
	retriever *HybridRetriever,
	expansion *QueryExpansionService,
	reranker *Reranker,
	llm driven.GenerationService,
	settings domain.Settings,
) *RAGOrchestrator {
	return &RAGOrchestrator{
		retriever: retriever,
		expansion: expansion,
		reranker:  reranker,
		llm:       llm,
		settings:  settings,
	}
}

// SetPromptStore sets the prompt store for loading customisable prompts.
func (o *RAGOrchestrator) SetPromptStore(store driven.PromptStore) {
	o.promptStore = store
}

// SetRewriteRules installs template-specific query-rewrite heuristics
// applied by each request's cache.
func (o *RAGOrchestrator) SetRewriteRules(rules []RewriteRule) {
	o.rules = rules
}

// GenerateCitedAnswer runs the full pipeline with a fresh per-request
// cache.
func (o *RAGOrchestrator) GenerateCitedAnswer(
	ctx context.Context, query string, opts domain.AnswerOptions,
) (*domain.CitedAnswer, error) {
	return o.GenerateCitedAnswerCached(ctx, NewRetrievalCache(o.rules...), query, opts)
}

// GenerateCitedAnswerCached runs the pipeline with a caller-supplied
// cache, letting a host that issues several orchestration calls within
// one logical request share memoised retrievals. The cache must not be
// reused across independent requests.
func (o *RAGOrchestrator) GenerateCitedAnswerCached(
	ctx context.Context, cache *RetrievalCache, query string, opts domain.AnswerOptions,
) (*domain.CitedAnswer, error) {
	logger.Section("Cited Answer")

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("generate cited answer: %w: empty query", domain.ErrInvalidInput)
	}
	if o.llm == nil {
		return nil, fmt.Errorf("generate cited answer: %w", domain.ErrGenerationFailed)
	}
	opts = o.applyDefaults(opts)
	query = cache.RewriteQuery(opts.DocumentID, query)

	merged := o.retrieve(ctx, cache, query, opts)
	entries := o.buildContext(ctx, query, merged, opts.MaxChunks)

	// Never call the generation provider on empty context.
	if len(entries) == 0 {
		logger.Info("No context survived reranking, returning empty answer")
		return &domain.CitedAnswer{
			Answer:     NoInformationAnswer,
			Sources:    []domain.CitedSource{},
			Confidence: 0,
		}, nil
	}

	contextBlock := formatContext(entries)

	reply, err := o.generateWithRetry(ctx, query, contextBlock)
	if err != nil {
		return nil, err
	}

	answer := o.assembleAnswer(reply, entries)

	if opts.UseVerification {
		o.verify(ctx, query, contextBlock, answer)
	}

	return answer, nil
}

// applyDefaults fills unset options from settings. Alpha and Threshold
// are pointers so an explicit zero survives: nil means "use the
// configured default", &0 means pure lexical and unfiltered similarity
// respectively.
func (o *RAGOrchestrator) applyDefaults(opts domain.AnswerOptions) domain.AnswerOptions {
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = o.settings.MaxChunks
	}
	if opts.Threshold == nil {
		threshold := o.settings.Threshold
		opts.Threshold = &threshold
	}
	if opts.Limit <= 0 {
		opts.Limit = o.settings.SearchLimit
	}
	if opts.Alpha == nil {
		alpha := o.settings.Alpha
		opts.Alpha = &alpha
	}
	if opts.ExpansionCount <= 0 {
		opts.ExpansionCount = o.settings.ExpansionCount
	}
	return opts
}

// retrieve produces the merged candidate list, memoised per request.
func (o *RAGOrchestrator) retrieve(
	ctx context.Context, cache *RetrievalCache, query string, opts domain.AnswerOptions,
) []domain.MultiQueryResult {
	key := RetrievalKey(query, opts)
	if cached, ok := cache.Get(key); ok {
		return cached
	}

	search := func(ctx context.Context, q string, embedding []float32) []domain.RetrievedCandidate {
		return o.retriever.Search(ctx, opts.DocumentID, q, embedding, *opts.Threshold, opts.Limit, *opts.Alpha)
	}

	var merged []domain.MultiQueryResult
	expanded := false
	if opts.UseExpansion && o.expansion != nil {
		results, err := o.expansion.ExpandAndSearch(ctx, query, opts.ExpansionCount, search)
		if err != nil {
			logger.Warn("Expansion failed, falling back to single query: %v", err)
		} else {
			merged = results
			expanded = true
		}
	}
	if !expanded {
		embedding := o.embedQuery(ctx, query)
		merged = mergeResults([][]domain.RetrievedCandidate{search(ctx, query, embedding)})
	}

	cache.Put(key, merged)
	return merged
}

// embedQuery embeds the query for single-query retrieval. Failure yields
// a nil vector; the retriever degrades to its fallback path.
func (o *RAGOrchestrator) embedQuery(ctx context.Context, query string) []float32 {
	if o.expansion == nil || o.expansion.embedder == nil {
		return nil
	}
	vec, err := o.expansion.embedder.Embed(ctx, query)
	if err != nil || len(vec) == 0 {
		logger.Warn("Query embedding failed: %v", err)
		return nil
	}
	return vec
}

// buildContext reranks the merged candidates down to maxChunks numbered
// context entries. Without a reranker, merge order decides.
func (o *RAGOrchestrator) buildContext(
	ctx context.Context, query string, merged []domain.MultiQueryResult, maxChunks int,
) []contextEntry {
	if len(merged) == 0 {
		return nil
	}

	texts := make([]string, len(merged))
	for i, m := range merged {
		texts[i] = m.Content
	}

	var entries []contextEntry
	if o.reranker != nil {
		// Map reranked passages back by input index: identical texts can
		// appear under different chunk IDs across documents.
		for _, r := range o.reranker.Rerank(ctx, query, texts, maxChunks) {
			source := merged[r.Index]
			entries = append(entries, contextEntry{
				number:  len(entries) + 1,
				chunkID: source.ChunkID,
				content: source.Content,
				score:   r.Score,
			})
		}
		return entries
	}

	for i, m := range merged {
		if i == maxChunks {
			break
		}
		entries = append(entries, contextEntry{
			number:  i + 1,
			chunkID: m.ChunkID,
			content: m.Content,
			score:   m.MaxScore,
		})
	}
	return entries
}

func formatContext(entries []contextEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", e.number, e.content)
	}
	return b.String()
}

// generateWithRetry issues the schema-constrained generation call,
// retrying parse and provider failures with linearly increasing backoff.
// Only the final exhausted attempt's error propagates.
func (o *RAGOrchestrator) generateWithRetry(ctx context.Context, query, contextBlock string) (*generationReply, error) {
	messages := []driven.ChatMessage{
		{Role: "system", Content: o.loadPrompt(driven.PromptCitedAnswer, defaultAnswerSystemPrompt)},
		{Role: "user", Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, query)},
	}

	var lastErr error
	for attempt := 1; attempt <= generateAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepBackoff(ctx, attempt-1); err != nil {
				return nil, err
			}
			logger.Debug("Generation attempt %d/%d", attempt, generateAttempts)
		}

		raw, err := o.llm.Complete(ctx, messages, driven.CompleteOptions{
			MaxTokens:   1500,
			Temperature: 0.2,
			Schema:      citedAnswerSchema(),
		})
		if err != nil {
			lastErr = err
			logger.Warn("Generation attempt %d failed: %v", attempt, err)
			continue
		}

		var reply generationReply
		if err := json.Unmarshal([]byte(raw), &reply); err != nil {
			lastErr = fmt.Errorf("%w: %v", domain.ErrSchemaViolation, err)
			logger.Warn("Generation attempt %d returned unparsable JSON: %v", attempt, err)
			continue
		}
		if strings.TrimSpace(reply.Answer) == "" {
			lastErr = fmt.Errorf("%w: empty answer", domain.ErrSchemaViolation)
			continue
		}

		return &reply, nil
	}

	return nil, fmt.Errorf("generate cited answer: %w: %w", domain.ErrGenerationFailed, lastErr)
}

// assembleAnswer maps the reply's citations onto the context entries.
// Citation numbers that do not reference a provided entry are dropped;
// the schema contract makes valid numbering the provider's responsibility.
func (o *RAGOrchestrator) assembleAnswer(reply *generationReply, entries []contextEntry) *domain.CitedAnswer {
	byNumber := make(map[int]contextEntry, len(entries))
	for _, e := range entries {
		byNumber[e.number] = e
	}

	sources := make([]domain.CitedSource, 0, len(reply.Citations))
	for _, c := range reply.Citations {
		entry, ok := byNumber[c.CitationNumber]
		if !ok {
			continue
		}
		sources = append(sources, domain.CitedSource{
			ID:             entry.chunkID,
			Content:        entry.content,
			Similarity:     entry.score,
			CitationNumber: c.CitationNumber,
		})
	}

	return &domain.CitedAnswer{
		Answer:     reply.Answer,
		Sources:    sources,
		Confidence: clampUnit(reply.Confidence),
	}
}

// verify runs one self-verification pass that may overwrite the answer
// and confidence exactly once. Any failure keeps the unverified draft.
func (o *RAGOrchestrator) verify(ctx context.Context, query, contextBlock string, answer *domain.CitedAnswer) {
	prompt := fmt.Sprintf(o.loadPrompt(driven.PromptVerification, defaultVerificationPrompt),
		query, answer.Answer, contextBlock)

	raw, err := o.llm.Complete(ctx, []driven.ChatMessage{
		{Role: "user", Content: prompt},
	}, driven.CompleteOptions{
		MaxTokens:   1500,
		Temperature: 0,
		Schema:      verificationSchema(),
	})
	if err != nil {
		logger.Warn("Verification failed, keeping draft: %v", err)
		return
	}

	var reply verificationReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		logger.Warn("Verification reply unparsable, keeping draft: %v", err)
		return
	}
	if strings.TrimSpace(reply.Answer) == "" {
		logger.Warn("Verification returned empty answer, keeping draft")
		return
	}

	answer.Answer = reply.Answer
	answer.Confidence = clampUnit(reply.Confidence)
	logger.Info("Verification revised answer (confidence %.2f)", answer.Confidence)
}

// loadPrompt loads a prompt from the store, falling back to the default
// if unavailable.
func (o *RAGOrchestrator) loadPrompt(name, fallback string) string {
	if o.promptStore == nil {
		return fallback
	}
	prompt, err := o.promptStore.Load(name)
	if err != nil {
		return fallback
	}
	return prompt
}

// sleepBackoff waits attempt*backoffBase, honouring context cancellation.
func sleepBackoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt) * backoffBase)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// citedAnswerSchema constrains the generation reply to an answer with
// numbered citations and a confidence value.
func citedAnswerSchema() *driven.ResponseSchema {
	return &driven.ResponseSchema{
		Name: "cited_answer",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer": map[string]any{"type": "string"},
				"citations": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"citation_number": map[string]any{"type": "integer"},
							"quoted_text":     map[string]any{"type": "string"},
							"relevance":       map[string]any{"type": "string"},
						},
						"required":             []string{"citation_number", "quoted_text", "relevance"},
						"additionalProperties": false,
					},
				},
				"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			},
			"required":             []string{"answer", "citations", "confidence"},
			"additionalProperties": false,
		},
	}
}

// verificationSchema constrains the verification reply to a revised
// answer and confidence only.
func verificationSchema() *driven.ResponseSchema {
	return &driven.ResponseSchema{
		Name: "verified_answer",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer":     map[string]any{"type": "string"},
				"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			},
			"required":             []string{"answer", "confidence"},
			"additionalProperties": false,
		},
	}
}
