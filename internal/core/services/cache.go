package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
	"github.com/tsumiki-ai/ragcore/internal/logger"
)

// RewriteRule prefixes queries aimed at matching templates with topic
// keywords, sharpening retrieval for templates whose chunks rarely repeat
// the template's own subject.
type RewriteRule struct {
	// TemplateMatch is a substring matched against the document ID.
	TemplateMatch string

	// Prefix is prepended to the query when the rule matches and the
	// query does not already mention it.
	Prefix string
}

// RetrievalCache memoises retrieval results within one logical request
// and hosts template-specific query-rewrite heuristics.
//
// The cache is scoped to a single orchestration call (or one host-side
// page render): construct a fresh one per request and let it go out of
// scope afterwards. It is not a long-lived cache and has no eviction.
type RetrievalCache struct {
	id      string
	mu      sync.Mutex
	results map[string][]domain.MultiQueryResult
	rules   []RewriteRule
}

// NewRetrievalCache creates an empty per-request cache.
func NewRetrievalCache(rules ...RewriteRule) *RetrievalCache {
	return &RetrievalCache{
		id:      uuid.New().String(),
		results: make(map[string][]domain.MultiQueryResult),
		rules:   rules,
	}
}

// ID identifies this cache instance in logs.
func (c *RetrievalCache) ID() string {
	return c.id
}

// RetrievalKey builds the memoisation key for one retrieval call. Every
// option that shapes the merged result participates: document scope,
// query, limit, alpha, threshold, and the expansion mode. Unset alpha or
// threshold keys as "-" so resolved and unresolved options never collide.
func RetrievalKey(query string, opts domain.AnswerOptions) string {
	doc := "*"
	if opts.DocumentID != nil {
		doc = *opts.DocumentID
	}
	alpha := "-"
	if opts.Alpha != nil {
		alpha = fmt.Sprintf("%.3f", *opts.Alpha)
	}
	threshold := "-"
	if opts.Threshold != nil {
		threshold = fmt.Sprintf("%.3f", *opts.Threshold)
	}
	expansion := 0
	if opts.UseExpansion {
		expansion = opts.ExpansionCount
	}
	return fmt.Sprintf("%s|%s|%d|%s|%s|%t|%d",
		doc, query, opts.Limit, alpha, threshold, opts.UseExpansion, expansion)
}

// Get returns the memoised results for a key, if present.
func (c *RetrievalCache) Get(key string) ([]domain.MultiQueryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	results, ok := c.results[key]
	if ok {
		logger.Debug("Retrieval cache hit (%s): %s", c.id, key)
	}
	return results, ok
}

// Put memoises results for a key.
func (c *RetrievalCache) Put(key string, results []domain.MultiQueryResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = results
}

// RewriteQuery applies the first matching template rule to the query.
// Queries that already mention the prefix pass through unchanged, as do
// queries with no document scope.
func (c *RetrievalCache) RewriteQuery(documentID *string, query string) string {
	if documentID == nil {
		return query
	}
	for _, rule := range c.rules {
		if !strings.Contains(*documentID, rule.TemplateMatch) {
			continue
		}
		if strings.Contains(strings.ToLower(query), strings.ToLower(rule.Prefix)) {
			return query
		}
		rewritten := rule.Prefix + " " + query
		logger.Debug("Query rewritten for template %s: %q", *documentID, rewritten)
		return rewritten
	}
	return query
}
