package domain

// Default pipeline tuning values.
const (
	// DefaultMaxChunkSize is the character budget per chunk.
	DefaultMaxChunkSize = 1200

	// DefaultMinChunkSize is the lower bound below which non-structural
	// chunks are dropped.
	DefaultMinChunkSize = 50

	// DefaultOverlapSize is the maximum trailing overlap carried into the
	// next chunk when a section is size-split.
	DefaultOverlapSize = 200

	// DefaultAlpha is the hybrid blend weight (0 = lexical, 1 = semantic).
	DefaultAlpha = 0.5

	// DefaultThreshold is the minimum semantic similarity for a hit.
	DefaultThreshold = 0.3

	// DefaultSearchLimit is the per-query candidate cap.
	DefaultSearchLimit = 20

	// DefaultMaxChunks is the post-rerank context size.
	DefaultMaxChunks = 8

	// DefaultExpansionCount is the number of paraphrases to generate.
	DefaultExpansionCount = 2
)

// Settings carries resolved pipeline configuration.
type Settings struct {
	MaxChunkSize   int
	MinChunkSize   int
	OverlapSize    int
	Alpha          float64
	Threshold      float64
	SearchLimit    int
	MaxChunks      int
	ExpansionCount int
}

// DefaultSettings returns the built-in tuning values.
func DefaultSettings() Settings {
	return Settings{
		MaxChunkSize:   DefaultMaxChunkSize,
		MinChunkSize:   DefaultMinChunkSize,
		OverlapSize:    DefaultOverlapSize,
		Alpha:          DefaultAlpha,
		Threshold:      DefaultThreshold,
		SearchLimit:    DefaultSearchLimit,
		MaxChunks:      DefaultMaxChunks,
		ExpansionCount: DefaultExpansionCount,
	}
}

// AnswerOptions configures a single orchestration call.
type AnswerOptions struct {
	// DocumentID restricts retrieval to one document. Nil searches all.
	DocumentID *string

	// UseExpansion enables multi-query expansion before retrieval.
	UseExpansion bool

	// ExpansionCount is the number of paraphrases to generate when
	// expansion is enabled. Zero uses DefaultExpansionCount.
	ExpansionCount int

	// UseVerification enables the self-verification pass.
	UseVerification bool

	// MaxChunks caps the reranked context. Zero uses DefaultMaxChunks.
	MaxChunks int

	// Threshold is the minimum similarity. Nil uses DefaultThreshold;
	// an explicit zero admits every candidate.
	Threshold *float64

	// Limit caps raw retrieval per query. Zero uses DefaultSearchLimit.
	Limit int

	// Alpha is the hybrid blend weight. Nil uses DefaultAlpha; an
	// explicit zero is pure lexical and one is pure semantic.
	Alpha *float64
}
