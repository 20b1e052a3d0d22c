package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driven"
	"github.com/tsumiki-ai/ragcore/internal/logger"
)

// Ensure the reranker can use customised prompts.
var _ driven.PromptStoreAware = (*Reranker)(nil)

// rerankConcurrency bounds parallel scoring calls.
const rerankConcurrency = 3

// scorePattern extracts the leading numeric rating from a scoring reply.
var scorePattern = regexp.MustCompile(`\d+(\.\d+)?`)

// defaultRerankPrompt is the fallback when no PromptStore is configured.
const defaultRerankPrompt = `Rate how relevant the passage is to the query on a scale of 0 to 10.
Reply with the number only.

Query: %s

Passage:
%s`

// Reranker narrows a broad candidate set to the top-K most relevant
// passages using a relevance-scoring call separate from retrieval scores.
// Retrieval casts a wide net; reranking provides final precision.
type Reranker struct {
	llm         driven.GenerationService
	promptStore driven.PromptStore
}

// NewReranker creates a new reranker.
func NewReranker(llm driven.GenerationService) *Reranker {
	return &Reranker{llm: llm}
}

// SetPromptStore sets the prompt store for loading customisable prompts.
func (r *Reranker) SetPromptStore(store driven.PromptStore) {
	r.promptStore = store
}

// Rerank scores each candidate passage against the query and returns the
// top-K by score, descending. Each result carries the input index of the
// candidate it was built from. Output length is min(topK, len(candidates)).
// A candidate whose scoring call fails or does not parse scores zero; the
// sort is stable, so equal scores keep input order and the pass stays
// deterministic for a deterministic relevance model.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []string, topK int) []domain.RerankedResult {
	if len(candidates) == 0 || topK <= 0 {
		return nil
	}

	logger.Section("Rerank")
	logger.Debug("Scoring %d candidates, top-K=%d", len(candidates), topK)

	scores := make([]float64, len(candidates))

	if r.llm != nil {
		sem := make(chan struct{}, rerankConcurrency)
		var wg sync.WaitGroup
		for i := range candidates {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				scores[i] = r.scoreCandidate(ctx, query, candidates[i])
			}(i)
		}
		wg.Wait()
	} else {
		logger.Warn("Rerank: generation service unavailable, keeping input order")
	}

	results := make([]domain.RerankedResult, len(candidates))
	for i, text := range candidates {
		results[i] = domain.RerankedResult{Index: i, Content: text, Score: scores[i]}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK < len(results) {
		results = results[:topK]
	}

	logger.Info("Reranked to %d results", len(results))
	return results
}

// scoreCandidate asks the relevance model for a 0-10 rating and maps it
// to 0-1. Failures and unparsable replies score zero.
func (r *Reranker) scoreCandidate(ctx context.Context, query, passage string) float64 {
	prompt := fmt.Sprintf(r.loadPrompt(driven.PromptRerankScore, defaultRerankPrompt), query, passage)

	reply, err := r.llm.Complete(ctx, []driven.ChatMessage{
		{Role: "user", Content: prompt},
	}, driven.CompleteOptions{
		MaxTokens:   8,
		Temperature: 0,
	})
	if err != nil {
		logger.Warn("Rerank scoring call failed: %v", err)
		return 0
	}

	match := scorePattern.FindString(strings.TrimSpace(reply))
	if match == "" {
		logger.Warn("Rerank: unparsable score reply %q", reply)
		return 0
	}

	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score / 10
}

// loadPrompt loads a prompt from the store, falling back to the default
// if unavailable.
func (r *Reranker) loadPrompt(name, fallback string) string {
	if r.promptStore == nil {
		return fallback
	}
	prompt, err := r.promptStore.Load(name)
	if err != nil {
		return fallback
	}
	return prompt
}
