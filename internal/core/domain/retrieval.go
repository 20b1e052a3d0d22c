package domain

// RetrievedCandidate is a single hit from one search call.
// Candidates are produced fresh per query and never persisted.
type RetrievedCandidate struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Content is the chunk text.
	Content string

	// SemanticScore is the cosine similarity (0-1).
	SemanticScore float64

	// LexicalScore is the normalised BM25 score (0-1).
	// Nil when the candidate came from a vector-only or fallback path.
	LexicalScore *float64

	// CombinedScore is the alpha-weighted blend of semantic and lexical.
	CombinedScore float64
}

// MultiQueryResult is the merge of RetrievedCandidate lists across the
// original query and its paraphrases.
type MultiQueryResult struct {
	// ChunkID is the matched chunk. Unique within a merged list.
	ChunkID string

	// Content is the chunk text.
	Content string

	// QuerySources holds the zero-based indices of every query variant
	// that surfaced this chunk (0 = original query).
	QuerySources []int

	// MaxScore is the highest combined score seen across variants.
	MaxScore float64
}

// RerankedResult is a candidate that survived the rerank pass.
// Index is the candidate's position in the input slice, so callers can
// map the reordered output back to richer records without assuming
// passage texts are unique.
type RerankedResult struct {
	Index   int
	Content string
	Score   float64
}

// CitedSource is one context passage referenced by a generated answer.
type CitedSource struct {
	ID             string  `json:"id"`
	Content        string  `json:"content"`
	Similarity     float64 `json:"similarity"`
	CitationNumber int     `json:"citation_number"`
}

// CitedAnswer is the final product of the orchestration pipeline.
// It is created once per generation call and not mutated after return;
// an optional verification pass may revise Answer and Confidence exactly
// once before the value is handed to the caller.
type CitedAnswer struct {
	// Answer is the generated, citation-grounded answer text.
	Answer string `json:"answer"`

	// Sources lists the context passages the answer cites.
	Sources []CitedSource `json:"sources"`

	// Confidence is the model's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`
}
