package driving

import (
	"context"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
)

// Answerer runs the full query-time pipeline and returns a cited answer.
type Answerer interface {
	// GenerateCitedAnswer retrieves, reranks, and generates. It returns
	// either a CitedAnswer or an error; callers should map errors to a
	// generic "generation failed, retry later" message rather than expose
	// provider error text to end users.
	GenerateCitedAnswer(ctx context.Context, query string, opts domain.AnswerOptions) (*domain.CitedAnswer, error)
}
