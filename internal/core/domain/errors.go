package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingFailed indicates every chunk of a document failed to embed.
	// Individual chunk failures are tolerated; a document with zero embedded
	// chunks is not retrievable and must surface an error.
	ErrEmbeddingFailed = errors.New("embedding failed for all chunks")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationFailed indicates structured generation exhausted its
	// retry budget. The last underlying provider error is wrapped.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrSchemaViolation indicates the provider returned output that does
	// not parse against the requested schema. Fatal for that attempt only.
	ErrSchemaViolation = errors.New("response violates schema")

	// ErrSearchUnavailable indicates the search backend is not configured.
	ErrSearchUnavailable = errors.New("search backend unavailable")

	// ErrRateLimited indicates the provider rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)
