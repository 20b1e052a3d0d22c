package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driven"
	"github.com/tsumiki-ai/ragcore/internal/logger"
)

// Ensure the service can use customised prompts.
var _ driven.PromptStoreAware = (*QueryExpansionService)(nil)

// SearchFunc runs one retrieval call for a single query variant.
type SearchFunc func(ctx context.Context, query string, embedding []float32) []domain.RetrievedCandidate

// maxParaphraseLen is the rune cap above which a generated paraphrase
// line is considered malformed and discarded.
const maxParaphraseLen = 200

// numberedLinePattern matches "1. text" or "1) text" paraphrase lines.
var numberedLinePattern = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)

// defaultExpansionPrompt is the fallback when no PromptStore is configured.
const defaultExpansionPrompt = `Generate %d alternative phrasings of the search query below.
Keep the meaning identical; vary the wording and level of specificity.
Reply with a numbered list only, one phrasing per line.

Query: %s`

// QueryExpansionService widens recall by issuing paraphrased variants of
// a query and merging their results. Chunks corroborated by more query
// phrasings rank before chunks with a single high score.
type QueryExpansionService struct {
	llm         driven.GenerationService
	embedder    driven.EmbeddingService
	promptStore driven.PromptStore
}

// NewQueryExpansionService creates a new expansion service.
// The llm parameter is optional; without it expansion degrades to
// searching the original query only.
func NewQueryExpansionService(
	llm driven.GenerationService,
	embedder driven.EmbeddingService,
) *QueryExpansionService {
	return &QueryExpansionService{
		llm:      llm,
		embedder: embedder,
	}
}

// SetPromptStore sets the prompt store for loading customisable prompts.
func (s *QueryExpansionService) SetPromptStore(store driven.PromptStore) {
	s.promptStore = store
}

// ExpandAndSearch generates expansionCount paraphrases, embeds the full
// query set, fans out one search per variant, and merges the results.
//
// The merged list is sorted by corroboration count (how many variants
// surfaced the chunk) descending, then by max score descending. No chunk
// ID appears twice.
func (s *QueryExpansionService) ExpandAndSearch(
	ctx context.Context, query string, expansionCount int, search SearchFunc,
) ([]domain.MultiQueryResult, error) {
	logger.Section("Query Expansion")

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("expand and search: %w: empty query", domain.ErrInvalidInput)
	}
	if search == nil {
		return nil, fmt.Errorf("expand and search: %w: nil search function", domain.ErrInvalidInput)
	}
	if expansionCount < 0 {
		expansionCount = 0
	}

	queries := append([]string{query}, s.Expand(ctx, query, expansionCount)...)
	logger.Info("Searching %d query variants", len(queries))

	embeddings := s.embedQueries(ctx, queries)

	// Fan out one search per variant; no ordering dependency between them.
	resultsPerQuery := make([][]domain.RetrievedCandidate, len(queries))
	var wg sync.WaitGroup
	for i := range queries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resultsPerQuery[i] = search(ctx, queries[i], embeddings[i])
		}(i)
	}
	wg.Wait()

	merged := mergeResults(resultsPerQuery)
	logger.Info("Merged to %d unique chunks", len(merged))
	return merged, nil
}

// Expand asks the generation provider for count paraphrases of the query,
// parsing a numbered-list response. Malformed or over-length lines are
// discarded; any provider failure degrades to zero paraphrases.
func (s *QueryExpansionService) Expand(ctx context.Context, query string, count int) []string {
	if count <= 0 || s.llm == nil {
		return nil
	}

	prompt := fmt.Sprintf(s.loadPrompt(driven.PromptQueryExpansion, defaultExpansionPrompt), count, query)

	reply, err := s.llm.Complete(ctx, []driven.ChatMessage{
		{Role: "user", Content: prompt},
	}, driven.CompleteOptions{
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		logger.Warn("Query expansion failed, using original query only: %v", err)
		return nil
	}

	paraphrases := parseNumberedList(reply, count)
	logger.Debug("Generated %d paraphrases", len(paraphrases))
	return paraphrases
}

// embedQueries embeds the full query set in one batch call. On failure
// all variants get a nil embedding; the retriever's fallback path still
// produces candidates.
func (s *QueryExpansionService) embedQueries(ctx context.Context, queries []string) [][]float32 {
	if s.embedder == nil {
		logger.Warn("Embedding service unavailable, searching without query vectors")
		return make([][]float32, len(queries))
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, queries)
	if err != nil || len(embeddings) != len(queries) {
		logger.Warn("Query embedding failed, searching without query vectors: %v", err)
		return make([][]float32, len(queries))
	}
	return embeddings
}

// parseNumberedList extracts up to count well-formed paraphrase lines.
func parseNumberedList(reply string, count int) []string {
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		m := numberedLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		paraphrase := strings.TrimSpace(m[1])
		if paraphrase == "" || runeLen(paraphrase) > maxParaphraseLen {
			continue
		}
		out = append(out, paraphrase)
		if len(out) == count {
			break
		}
	}
	return out
}

// mergeResults merges per-variant candidate lists keyed by chunk ID.
// First occurrence seeds the result; later occurrences append the variant
// index and raise the max score. The final order puts breadth of
// corroboration before peak score.
func mergeResults(resultsPerQuery [][]domain.RetrievedCandidate) []domain.MultiQueryResult {
	byChunk := make(map[string]*domain.MultiQueryResult)
	var order []string

	for queryIndex, candidates := range resultsPerQuery {
		for _, c := range candidates {
			existing, ok := byChunk[c.ChunkID]
			if !ok {
				byChunk[c.ChunkID] = &domain.MultiQueryResult{
					ChunkID:      c.ChunkID,
					Content:      c.Content,
					QuerySources: []int{queryIndex},
					MaxScore:     c.CombinedScore,
				}
				order = append(order, c.ChunkID)
				continue
			}
			if !containsInt(existing.QuerySources, queryIndex) {
				existing.QuerySources = append(existing.QuerySources, queryIndex)
			}
			if c.CombinedScore > existing.MaxScore {
				existing.MaxScore = c.CombinedScore
			}
		}
	}

	merged := make([]domain.MultiQueryResult, 0, len(order))
	for _, id := range order {
		merged = append(merged, *byChunk[id])
	}

	// Corroboration outweighs peak score; stable sort keeps first-seen
	// order for full ties so merging stays deterministic.
	sort.SliceStable(merged, func(i, j int) bool {
		if len(merged[i].QuerySources) != len(merged[j].QuerySources) {
			return len(merged[i].QuerySources) > len(merged[j].QuerySources)
		}
		return merged[i].MaxScore > merged[j].MaxScore
	})

	return merged
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// loadPrompt loads a prompt from the store, falling back to the default
// if unavailable.
func (s *QueryExpansionService) loadPrompt(name, fallback string) string {
	if s.promptStore == nil {
		return fallback
	}
	prompt, err := s.promptStore.Load(name)
	if err != nil {
		return fallback
	}
	return prompt
}
