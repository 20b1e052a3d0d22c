package driving

import "context"

// Indexer rebuilds the retrievable chunk set for a document.
type Indexer interface {
	// Reindex replaces the document's chunk set: delete, chunk, embed,
	// bulk upsert. Individual embedding failures are tolerated; the
	// document ends up with the chunks that embedded successfully.
	Reindex(ctx context.Context, documentID, content string) error
}
