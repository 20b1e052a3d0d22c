// Package sqlite provides the SQLite-backed search store.
//
// Chunks live in a single table with their embeddings serialised as
// little-endian float32 BLOBs. Lexical relevance uses an FTS5 index
// with BM25 scoring; semantic relevance is cosine similarity computed
// in Go at query time. Hybrid search blends the two with a caller
// supplied alpha weight.
package sqlite
