package domain

import "time"

// Document is the source text for a retrievable chunk set.
// It is supplied by the caller and identified by a stable template ID;
// the content is treated as immutable between reindex runs.
type Document struct {
	// ID is the stable template identifier.
	ID string

	// Content is the full document text before chunking.
	Content string

	// Version increments on each reindex of the document.
	Version int
}

// Chunk is a retrievable, bounded-size excerpt of a document.
// The chunk set for a document is always replaced wholesale on reindex,
// never partially patched.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the parent document.
	DocumentID string

	// Index is the ordinal position within the document.
	// It is unique and contiguous within a DocumentID.
	Index int

	// Content is the text content of this chunk.
	Content string

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// UpdatedAt is when the chunk was last written.
	UpdatedAt time.Time
}
