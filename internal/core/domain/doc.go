// Package domain defines the core business entities for the RAG pipeline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: caller-supplied source text for a chunk set
//   - Chunk: a retrievable, bounded-size excerpt of a document
//   - RetrievedCandidate: one hit from a single search call
//   - MultiQueryResult: the multi-query merge of candidates
//   - CitedAnswer: the final citation-grounded answer
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
