package driven

import "context"

// GenerationService provides chat completion for query expansion, rerank
// scoring, and cited answer generation.
//
// Implementations may include:
//   - OpenAI (gpt-4o, gpt-4o-mini)
//   - Anthropic (Claude)
type GenerationService interface {
	// Complete produces a completion for the given conversation.
	//
	// When opts.Schema is set the provider must constrain its reply to
	// valid JSON matching the schema. A reply that does not parse against
	// the schema is a hard error for that call; retry policy is the
	// caller's concern.
	Complete(ctx context.Context, messages []ChatMessage, opts CompleteOptions) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight
	// test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// CompleteOptions configures a completion call.
type CompleteOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// Schema, when non-nil, requests structured mode: the reply must be
	// valid JSON matching this schema.
	Schema *ResponseSchema
}

// ResponseSchema describes the JSON shape a structured completion must
// conform to. Definition is a JSON Schema object.
type ResponseSchema struct {
	// Name identifies the schema to the provider.
	Name string

	// Definition is the JSON Schema body (type, properties, required, ...).
	Definition map[string]any
}
