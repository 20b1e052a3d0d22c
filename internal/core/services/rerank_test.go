package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsumiki-ai/ragcore/internal/core/ports/driven"
)

// scoringLLM rates passages by a canned score table keyed on passage text.
func scoringLLM(scores map[string]string) *mockLLM {
	return &mockLLM{completeFn: func(messages []driven.ChatMessage, _ driven.CompleteOptions) (string, error) {
		prompt := messages[len(messages)-1].Content
		for passage, score := range scores {
			if strings.Contains(prompt, passage) {
				return score, nil
			}
		}
		return "0", nil
	}}
}

func TestRerank_OrdersByScoreAndTruncates(t *testing.T) {
	llm := scoringLLM(map[string]string{
		"passage about fees":    "9",
		"passage about support": "3",
		"passage about refunds": "7",
		"unrelated passage":     "1",
	})
	r := NewReranker(llm)

	results := r.Rerank(context.Background(), "what are the fees?", []string{
		"passage about support",
		"passage about fees",
		"unrelated passage",
		"passage about refunds",
	}, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "passage about fees", results[0].Content)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
	assert.Equal(t, "passage about refunds", results[1].Content)

	// Results keep their input index through the reorder.
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 3, results[1].Index)
}

func TestRerank_DuplicateTextsKeepDistinctIndices(t *testing.T) {
	r := NewReranker(nil)

	results := r.Rerank(context.Background(), "q", []string{"same text", "same text"}, 2)

	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
}

func TestRerank_TopKLargerThanInput(t *testing.T) {
	r := NewReranker(scoringLLM(map[string]string{"only one": "5"}))

	results := r.Rerank(context.Background(), "q", []string{"only one"}, 8)

	require.Len(t, results, 1)
}

func TestRerank_UnparsableScoreIsZero(t *testing.T) {
	llm := &mockLLM{reply: "I cannot rate this"}
	r := NewReranker(llm)

	results := r.Rerank(context.Background(), "q", []string{"a", "b"}, 2)

	require.Len(t, results, 2)
	assert.Zero(t, results[0].Score)
	assert.Zero(t, results[1].Score)
	// Stable sort keeps input order on ties.
	assert.Equal(t, "a", results[0].Content)
}

func TestRerank_ScoreClamped(t *testing.T) {
	llm := &mockLLM{reply: "250"}
	r := NewReranker(llm)

	results := r.Rerank(context.Background(), "q", []string{"a"}, 1)

	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestRerank_NilLLMKeepsInputOrder(t *testing.T) {
	r := NewReranker(nil)

	results := r.Rerank(context.Background(), "q", []string{"first", "second", "third"}, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Content)
	assert.Equal(t, "second", results[1].Content)
}

func TestRerank_EmptyInput(t *testing.T) {
	r := NewReranker(&mockLLM{})

	assert.Nil(t, r.Rerank(context.Background(), "q", nil, 5))
	assert.Nil(t, r.Rerank(context.Background(), "q", []string{"a"}, 0))
}
