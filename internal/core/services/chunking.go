package services

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
)

// DefaultKeepMarker flags a chunk that must survive the minimum-size
// filter regardless of length.
const DefaultKeepMarker = "[KEEP]"

// Structural line patterns. A line matching any of these starts a new
// section during grouping, and a chunk whose first line matches bypasses
// the minimum-size filter.
var (
	markdownHeadingPattern = regexp.MustCompile(`^\s*#{1,6}\s+\S`)
	numberedListPattern    = regexp.MustCompile(`^\s*\d+[.)]\s+\S`)
	priorityMarkerPattern  = regexp.MustCompile(`^\s*(【[^】]+】|\[[^\[\]\n]+\])`)
)

// ChunkingEngine splits a document into retrievable, overlap-bounded
// chunks. Splitting is deterministic: identical input always yields an
// identical ordered chunk list, so reindexing unchanged documents is
// idempotent.
type ChunkingEngine struct {
	maxChunkSize int
	minChunkSize int
	overlapSize  int
	keepMarker   string
}

// ChunkingOption configures the chunking engine.
type ChunkingOption func(*ChunkingEngine)

// WithMaxChunkSize sets the chunk character budget.
func WithMaxChunkSize(size int) ChunkingOption {
	return func(e *ChunkingEngine) {
		if size > 0 {
			e.maxChunkSize = size
		}
	}
}

// WithMinChunkSize sets the size below which non-structural chunks are
// dropped.
func WithMinChunkSize(size int) ChunkingOption {
	return func(e *ChunkingEngine) {
		if size >= 0 {
			e.minChunkSize = size
		}
	}
}

// WithOverlapSize sets the maximum overlap carried between size-split
// chunks.
func WithOverlapSize(size int) ChunkingOption {
	return func(e *ChunkingEngine) {
		if size >= 0 {
			e.overlapSize = size
		}
	}
}

// WithKeepMarker sets the marker string that exempts a chunk from the
// minimum-size filter.
func WithKeepMarker(marker string) ChunkingOption {
	return func(e *ChunkingEngine) {
		if marker != "" {
			e.keepMarker = marker
		}
	}
}

// NewChunkingEngine creates a chunking engine with the given options.
func NewChunkingEngine(opts ...ChunkingOption) *ChunkingEngine {
	e := &ChunkingEngine{
		maxChunkSize: domain.DefaultMaxChunkSize,
		minChunkSize: domain.DefaultMinChunkSize,
		overlapSize:  domain.DefaultOverlapSize,
		keepMarker:   DefaultKeepMarker,
	}

	for _, opt := range opts {
		opt(e)
	}

	// Overlap must leave room for new content in every chunk
	if e.overlapSize >= e.maxChunkSize {
		e.overlapSize = e.maxChunkSize / 4
	}

	return e
}

// Split chunks the document text. Output preserves document order, never
// contains an empty or duplicate chunk, and chunks below the minimum size
// are dropped unless they are structural (heading, priority marker) or
// carry the keep marker.
func (e *ChunkingEngine) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sections := e.groupSections(text)

	var chunks []string
	seen := make(map[string]bool)
	emit := func(c string) {
		c = strings.TrimSpace(c)
		// Overlap seeding can reproduce an existing chunk verbatim at
		// section tails; suppress exact duplicates.
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		chunks = append(chunks, c)
	}

	for _, section := range sections {
		if runeLen(section) <= e.maxChunkSize {
			emit(section)
			continue
		}
		for _, c := range e.splitBySize(section) {
			emit(c)
		}
	}

	filtered := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if runeLen(c) >= e.minChunkSize || e.isStructuralChunk(c) {
			filtered = append(filtered, c)
		}
	}

	return filtered
}

// groupSections walks lines and groups naturally-authored structure:
// a structural line or a blank line starts a new section.
func (e *ChunkingEngine) groupSections(text string) []string {
	lines := strings.Split(text, "\n")

	var sections []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		section := strings.Join(current, "\n")
		if strings.TrimSpace(section) != "" {
			sections = append(sections, section)
		}
		current = current[:0]
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if isStructuralLine(line) {
			flush()
		}
		current = append(current, line)
	}
	flush()

	return sections
}

// splitBySize re-splits an oversized section at sentence boundaries,
// seeding each new chunk with a bounded tail of its predecessor.
func (e *ChunkingEngine) splitBySize(section string) []string {
	sentences := splitSentences(section)

	var out []string
	var current []rune

	for _, sentence := range sentences {
		sr := []rune(sentence)

		if len(current) > 0 && len(current)+len(sr) > e.maxChunkSize {
			closed := string(current)
			out = append(out, closed)
			current = e.overlapTail(closed)
		}

		if len(current)+len(sr) > e.maxChunkSize {
			// A single sentence plus overlap still exceeds the budget:
			// force-split at whitespace boundaries.
			current = e.forceSplit(append(current, sr...), &out)
			continue
		}

		current = append(current, sr...)
	}

	if strings.TrimSpace(string(current)) != "" {
		out = append(out, string(current))
	}

	return out
}

// overlapTail returns the trailing overlap to seed the next chunk,
// bounded to min(overlapSize, 20% of the closed chunk length).
func (e *ChunkingEngine) overlapTail(closed string) []rune {
	r := []rune(closed)
	n := e.overlapSize
	if fifth := len(r) / 5; fifth < n {
		n = fifth
	}
	if n <= 0 {
		return nil
	}
	return append([]rune(nil), r[len(r)-n:]...)
}

// forceSplit emits budget-sized pieces of buf, cutting at the last
// whitespace before the budget, and returns the under-budget remainder.
func (e *ChunkingEngine) forceSplit(buf []rune, out *[]string) []rune {
	for len(buf) > e.maxChunkSize {
		cut := lastWhitespace(buf[:e.maxChunkSize])
		if cut <= 0 {
			cut = e.maxChunkSize
		}

		closed := string(buf[:cut])
		*out = append(*out, closed)

		// The overlap tail is always shorter than the cut, so the
		// buffer shrinks on every iteration.
		tail := e.overlapTail(closed)
		rest := buf[cut:]
		buf = append(tail, rest...)
	}
	return buf
}

// isStructuralChunk reports whether a chunk bypasses the minimum-size
// filter: its first line is structural, or it carries the keep marker.
func (e *ChunkingEngine) isStructuralChunk(chunk string) bool {
	if strings.Contains(chunk, e.keepMarker) {
		return true
	}
	firstLine := chunk
	if i := strings.IndexByte(chunk, '\n'); i >= 0 {
		firstLine = chunk[:i]
	}
	return isStructuralLine(firstLine)
}

func isStructuralLine(line string) bool {
	return markdownHeadingPattern.MatchString(line) ||
		numberedListPattern.MatchString(line) ||
		priorityMarkerPattern.MatchString(line)
}

// splitSentences splits text at sentence terminators, keeping each
// terminator attached to its sentence. Handles both Latin and CJK
// terminators plus newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		switch r {
		case '.', '!', '?', '。', '．', '！', '？', '\n':
			if strings.TrimSpace(current.String()) != "" {
				sentences = append(sentences, current.String())
			}
			current.Reset()
		}
	}

	if strings.TrimSpace(current.String()) != "" {
		sentences = append(sentences, current.String())
	}

	return sentences
}

func lastWhitespace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return -1
}

func runeLen(s string) int {
	return len([]rune(s))
}
