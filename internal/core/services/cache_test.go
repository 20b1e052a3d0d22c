package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func keyOpts() domain.AnswerOptions {
	return domain.AnswerOptions{
		DocumentID: strPtr("tpl-1"),
		Limit:      20,
		Alpha:      floatPtr(0.5),
		Threshold:  floatPtr(0.3),
	}
}

func TestRetrievalCache_Memoises(t *testing.T) {
	c := NewRetrievalCache()
	key := RetrievalKey("query", keyOpts())

	_, ok := c.Get(key)
	assert.False(t, ok)

	want := []domain.MultiQueryResult{{ChunkID: "c1", Content: "text"}}
	c.Put(key, want)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRetrievalKey_DistinguishesInputs(t *testing.T) {
	base := RetrievalKey("query", keyOpts())

	unscoped := keyOpts()
	unscoped.DocumentID = nil
	assert.NotEqual(t, base, RetrievalKey("query", unscoped))

	assert.NotEqual(t, base, RetrievalKey("other", keyOpts()))

	smaller := keyOpts()
	smaller.Limit = 10
	assert.NotEqual(t, base, RetrievalKey("query", smaller))

	semantic := keyOpts()
	semantic.Alpha = floatPtr(0.7)
	assert.NotEqual(t, base, RetrievalKey("query", semantic))
}

func TestRetrievalKey_DistinguishesThreshold(t *testing.T) {
	loose := keyOpts()
	loose.Threshold = floatPtr(0.3)
	strict := keyOpts()
	strict.Threshold = floatPtr(0.9)

	assert.NotEqual(t, RetrievalKey("query", loose), RetrievalKey("query", strict))
}

func TestRetrievalKey_DistinguishesExpansionMode(t *testing.T) {
	plain := keyOpts()
	expanded := keyOpts()
	expanded.UseExpansion = true
	expanded.ExpansionCount = 2
	wider := keyOpts()
	wider.UseExpansion = true
	wider.ExpansionCount = 4

	assert.NotEqual(t, RetrievalKey("query", plain), RetrievalKey("query", expanded))
	assert.NotEqual(t, RetrievalKey("query", expanded), RetrievalKey("query", wider))
}

func TestRetrievalKey_UnsetWeightsDoNotCollideWithZero(t *testing.T) {
	unset := keyOpts()
	unset.Alpha = nil
	unset.Threshold = nil
	zeroed := keyOpts()
	zeroed.Alpha = floatPtr(0)
	zeroed.Threshold = floatPtr(0)

	assert.NotEqual(t, RetrievalKey("query", unset), RetrievalKey("query", zeroed))
}

func TestRewriteQuery_AppliesMatchingRule(t *testing.T) {
	c := NewRetrievalCache(RewriteRule{TemplateMatch: "seo-article", Prefix: "SEO"})

	got := c.RewriteQuery(strPtr("tpl-seo-article-v2"), "how to write headings")

	assert.Equal(t, "SEO how to write headings", got)
}

func TestRewriteQuery_SkipsWhenPrefixPresent(t *testing.T) {
	c := NewRetrievalCache(RewriteRule{TemplateMatch: "seo-article", Prefix: "SEO"})

	got := c.RewriteQuery(strPtr("tpl-seo-article-v2"), "seo heading advice")

	assert.Equal(t, "seo heading advice", got)
}

func TestRewriteQuery_NoDocumentScope(t *testing.T) {
	c := NewRetrievalCache(RewriteRule{TemplateMatch: "seo", Prefix: "SEO"})

	assert.Equal(t, "plain query", c.RewriteQuery(nil, "plain query"))
}

func TestRewriteQuery_NoMatchingRule(t *testing.T) {
	c := NewRetrievalCache(RewriteRule{TemplateMatch: "seo", Prefix: "SEO"})

	assert.Equal(t, "q", c.RewriteQuery(strPtr("tpl-recipe"), "q"))
}

func TestNewRetrievalCache_UniqueIDs(t *testing.T) {
	assert.NotEqual(t, NewRetrievalCache().ID(), NewRetrievalCache().ID())
}
