package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files, embed them in the binary,
// or fetch them from a remote configuration service.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible
	// default or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	// This is useful when prompts may have been edited on disk.
	Reload()
}

// Well-known prompt names used throughout the pipeline.
// These constants define the contract between prompt consumers and providers.
const (
	// PromptQueryExpansion asks for N paraphrases of a query as a numbered
	// list. The template expects %d (count) and %s (query) placeholders.
	PromptQueryExpansion = "query_expansion"

	// PromptCitedAnswer is the system prompt for the schema-constrained
	// generation call. No format placeholders.
	PromptCitedAnswer = "cited_answer"

	// PromptVerification reviews a draft answer against its context.
	// The template expects %s (query), %s (draft), %s (context).
	PromptVerification = "verification"

	// PromptRerankScore rates one passage's relevance to a query on a
	// 0-10 scale. The template expects %s (query) and %s (passage).
	PromptRerankScore = "rerank_score"
)

// PromptStoreAware is an optional interface for services that can use
// custom prompts. Services implementing it can have their templates
// customised by injecting a PromptStore after construction.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt store for loading customisable
	// prompts. If not set, the service uses hardcoded defaults.
	SetPromptStore(store PromptStore)
}
