package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/tsumiki-ai/ragcore/internal/adapters/driven/searchstore/sqlite/migrations"
	"github.com/tsumiki-ai/ragcore/internal/core/domain"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.SearchStore = (*Store)(nil)

// Store is a SQLite-backed search store. Lexical relevance comes from
// an FTS5 index with BM25 scoring; semantic relevance is cosine
// similarity computed over embeddings stored as float32 BLOBs.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite search store at the specified data
// directory. If dataDir is empty, defaults to ~/.ragcore/data/index.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".ragcore", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "index.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_create_chunks.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// candidate is an intermediate scoring row shared by both search modes.
type candidate struct {
	id        string
	content   string
	embedding []float32
}

// SearchHybrid linearly combines semantic and lexical relevance using
// weight alpha. Lexical scores come from BM25 over the FTS5 index;
// semantic scores are cosine similarity computed here. Rows with
// semantic similarity below threshold are excluded.
func (s *Store) SearchHybrid(
	ctx context.Context, documentID *string, query string, embedding []float32,
	threshold float64, limit int, alpha float64,
) ([]driven.HybridRow, error) {
	lexical, err := s.lexicalScores(ctx, documentID, query)
	if err != nil {
		return nil, err
	}

	candidates, err := s.loadCandidates(ctx, documentID)
	if err != nil {
		return nil, err
	}

	rows := make([]driven.HybridRow, 0, len(candidates))
	for _, c := range candidates {
		similarity := cosineSimilarity(embedding, c.embedding)
		if similarity < threshold {
			continue
		}
		lex := lexical[c.id]
		rows = append(rows, driven.HybridRow{
			ID:            c.id,
			Content:       c.content,
			Similarity:    similarity,
			LexicalScore:  lex,
			CombinedScore: alpha*similarity + (1-alpha)*lex,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CombinedScore > rows[j].CombinedScore
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// SearchVector ranks by semantic similarity alone.
func (s *Store) SearchVector(
	ctx context.Context, documentID *string, embedding []float32,
	threshold float64, limit int,
) ([]driven.VectorRow, error) {
	candidates, err := s.loadCandidates(ctx, documentID)
	if err != nil {
		return nil, err
	}

	rows := make([]driven.VectorRow, 0, len(candidates))
	for _, c := range candidates {
		similarity := cosineSimilarity(embedding, c.embedding)
		if similarity < threshold {
			continue
		}
		rows = append(rows, driven.VectorRow{
			ID:         c.id,
			Content:    c.content,
			Similarity: similarity,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Similarity > rows[j].Similarity
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// lexicalScores returns normalised BM25 scores per chunk ID for the
// given query. An empty or unmatchable query yields an empty map, not
// an error.
func (s *Store) lexicalScores(ctx context.Context, documentID *string, query string) (map[string]float64, error) {
	match := ftsMatchQuery(query)
	if match == "" {
		return map[string]float64{}, nil
	}

	sqlQuery := `
		SELECT c.id, bm25(chunks_fts)
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
	`
	args := []any{match}
	if documentID != nil {
		sqlQuery += " AND c.document_id = ?"
		args = append(args, *documentID)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying lexical scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scanning lexical score: %w", err)
		}
		scores[id] = normaliseBM25(rank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lexical scores: %w", err)
	}
	return scores, nil
}

// loadCandidates reads chunk rows for similarity scoring. The ORDER BY
// keeps downstream tie-breaking deterministic.
func (s *Store) loadCandidates(ctx context.Context, documentID *string) ([]candidate, error) {
	sqlQuery := "SELECT id, content, embedding FROM chunks"
	var args []any
	if documentID != nil {
		sqlQuery += " WHERE document_id = ?"
		args = append(args, *documentID)
	}
	sqlQuery += " ORDER BY document_id, chunk_index"

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var c candidate
		var blob []byte
		if err := rows.Scan(&c.id, &c.content, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.embedding = bytesToFloat32Slice(blob)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return candidates, nil
}

// DeleteChunks removes every chunk belonging to a document. The FTS
// index is maintained by triggers.
func (s *Store) DeleteChunks(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// UpsertChunks writes a batch of chunks in one transaction.
func (s *Store) UpsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, content, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			chunk_index = excluded.chunk_index,
			content = excluded.content,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		_, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Index,
			chunk.Content, float32SliceToBytes(chunk.Embedding), chunk.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upserting chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

// ListChunks returns up to limit chunks ordered by chunk index.
// documentID == nil lists across all documents.
func (s *Store) ListChunks(ctx context.Context, documentID *string, limit int) ([]domain.Chunk, error) {
	sqlQuery := `
		SELECT id, document_id, chunk_index, content, embedding, updated_at
		FROM chunks
	`
	var args []any
	if documentID != nil {
		sqlQuery += " WHERE document_id = ?"
		args = append(args, *documentID)
	}
	sqlQuery += " ORDER BY document_id, chunk_index"
	if limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		var blob []byte
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Index,
			&chunk.Content, &blob, &chunk.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.Embedding = bytesToFloat32Slice(blob)
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// ==================== Helper Functions ====================

// ftsMatchQuery converts free text into an FTS5 MATCH expression.
// Each term is quoted so user input can never hit FTS query syntax;
// terms are OR-ed to keep recall broad for BM25 ranking.
func ftsMatchQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	terms := make([]string, len(fields))
	for i, f := range fields {
		terms[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(terms, " OR ")
}

// normaliseBM25 maps an FTS5 bm25() rank onto (0, 1). FTS5 reports
// better matches as more negative values.
func normaliseBM25(rank float64) float64 {
	raw := -rank
	if raw < 0 {
		raw = 0
	}
	return raw / (1 + raw)
}

// cosineSimilarity computes cosine similarity clamped to [0, 1].
// Mismatched or empty vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
