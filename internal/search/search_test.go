package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopzz/catmap/internal/domain"
)

func testBaseline() domain.Baseline {
	return domain.Baseline{
		Canonical: []domain.Category{
			{ID: "1", Name: "Обувь"},
			{ID: "2", Name: "Ботинки", ParentID: "1"},
			{ID: "3", Name: "Winter jackets"},
		},
		SourceA: []domain.Category{
			{ID: "10", Name: "Обувь мужская"},
			{ID: "11", Name: "Jackets"},
		},
		SourceB: []domain.Category{
			{ID: "20", Name: "Обувь"},
			{ID: "21", Name: "Caf\u00e9 furniture"},
		},
	}
}

// setupTestIndex creates an index over testBaseline.
func setupTestIndex(t *testing.T) (*CategoryIndex, func()) {
	t.Helper()

	index, err := NewCategoryIndex(nil)
	require.NoError(t, err)
	require.NoError(t, index.IndexDocuments(DocumentsFromBaseline(testBaseline())))

	cleanup := func() {
		_ = index.Close()
	}

	return index, cleanup
}

func hitKeys(res *Result) []string {
	keys := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		keys[i] = DocumentID(h.Platform, h.CategoryID)
	}
	return keys
}

func TestNewCategoryIndex(t *testing.T) {
	index, err := NewCategoryIndex(nil)
	require.NoError(t, err)
	defer index.Close()

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestDocumentsFromBaseline(t *testing.T) {
	docs := DocumentsFromBaseline(testBaseline())
	require.Len(t, docs, 7)
	assert.Equal(t, "canonical:1", docs[0].ID)
	assert.Equal(t, "source_b:21", docs[6].ID)

	m := docs[1].ToMap()
	assert.Equal(t, "1", m["parent_id"])
	_, hasParent := docs[0].ToMap()["parent_id"]
	assert.False(t, hasParent)
}

func TestSearch_ByName(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	res, err := index.Search(context.Background(), Params{Query: "обувь"})
	require.NoError(t, err)

	assert.Equal(t, uint64(3), res.Total)
	assert.ElementsMatch(t, []string{"canonical:1", "source_a:10", "source_b:20"}, hitKeys(res))
	for _, h := range res.Hits {
		assert.NotEmpty(t, h.Name)
		assert.Greater(t, h.Score, 0.0)
	}
}

func TestSearch_PlatformFilter(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	res, err := index.Search(context.Background(), Params{Query: "обувь", Platform: domain.PlatformSourceA})
	require.NoError(t, err)

	require.Len(t, res.Hits, 1)
	assert.Equal(t, domain.CategoryID("10"), res.Hits[0].CategoryID)
	assert.Equal(t, "Обувь мужская", res.Hits[0].Name)
}

func TestSearch_Fuzzy(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	res, err := index.Search(context.Background(), Params{Query: "jackts"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"canonical:3", "source_a:11"}, hitKeys(res))
}

func TestSearch_Prefix(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	res, err := index.Search(context.Background(), Params{Query: "Боти", Platform: domain.PlatformCanonical})
	require.NoError(t, err)

	require.Len(t, res.Hits, 1)
	assert.Equal(t, domain.CategoryID("2"), res.Hits[0].CategoryID)
	assert.Equal(t, domain.CategoryID("1"), res.Hits[0].ParentID)
}

func TestSearch_NormalizesQuery(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	// Decomposed accent matches the composed indexed name.
	res, err := index.Search(context.Background(), Params{Query: "cafe\u0301"})
	require.NoError(t, err)

	require.NotEmpty(t, res.Hits)
	assert.Equal(t, domain.CategoryID("21"), res.Hits[0].CategoryID)
}

func TestSearch_Restrict(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()
	ctx := context.Background()

	res, err := index.Search(ctx, Params{
		Query:    "обувь",
		Platform: domain.PlatformSourceB,
		Restrict: []domain.CategoryID{"21"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)

	res, err = index.Search(ctx, Params{
		Platform: domain.PlatformSourceB,
		Restrict: []domain.CategoryID{"20", "21"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"source_b:20", "source_b:21"}, hitKeys(res))

	res, err = index.Search(ctx, Params{Platform: domain.PlatformSourceB, Restrict: []domain.CategoryID{}})
	require.NoError(t, err)
	assert.NotNil(t, res.Hits)
	assert.Empty(t, res.Hits)

	_, err = index.Search(ctx, Params{Restrict: []domain.CategoryID{"20"}})
	assert.Error(t, err)
}

func TestSearch_EmptyQueryMatchesAll(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	res, err := index.Search(context.Background(), Params{Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, uint64(7), res.Total)
	assert.Len(t, res.Hits, 2)
}

func TestReplace(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	err := index.Replace([]*Document{NewDocument(domain.PlatformSourceA, domain.Category{ID: "99", Name: "Hats"})})
	require.NoError(t, err)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	res, err := index.Search(context.Background(), Params{Query: "hats"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, domain.PlatformSourceA, res.Hits[0].Platform)
}
