package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/text/unicode/norm"

	"github.com/shopzz/catmap/internal/domain"
)

// DefaultLimit is used when Params.Limit is not positive.
const DefaultLimit = 20

// Params configures a search query.
type Params struct {
	Query    string          // User's search query; empty matches everything
	Platform domain.Platform // Restrict to one hierarchy (empty = all)

	// Restrict, when non-nil, limits hits to these categories of Platform.
	// The service passes the live pool here for available-only searches.
	Restrict []domain.CategoryID

	Limit  int
	Offset int
}

// Result represents the search results.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
}

// Hit represents a single matching category.
type Hit struct {
	Platform   domain.Platform   `json:"platform"`
	CategoryID domain.CategoryID `json:"id"`
	Name       string            `json:"name"`
	ParentID   domain.CategoryID `json:"parent_id"`
	Score      float64           `json:"score"`
	Highlight  string            `json:"highlight,omitempty"`
}

// Search executes a search query.
func (s *CategoryIndex) Search(ctx context.Context, params Params) (*Result, error) {
	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}

	if params.Restrict != nil && params.Platform == "" {
		return nil, fmt.Errorf("restricted search requires a platform")
	}

	result := &Result{Query: params.Query, Hits: []Hit{}}
	if params.Restrict != nil && len(params.Restrict) == 0 {
		return result, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	req.SortBy([]string{"-_score", "platform", "category_id"})
	req.Fields = []string{"platform", "category_id", "name", "parent_id"}
	if params.Query != "" {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("name")
	}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result.Total = res.Total
	result.TookMs = res.Took.Milliseconds()
	for _, h := range res.Hits {
		hit := Hit{Score: h.Score}
		if p, ok := h.Fields["platform"].(string); ok {
			hit.Platform = domain.Platform(p)
		}
		if id, ok := h.Fields["category_id"].(string); ok {
			hit.CategoryID = domain.CategoryID(id)
		}
		if n, ok := h.Fields["name"].(string); ok {
			hit.Name = n
		}
		if p, ok := h.Fields["parent_id"].(string); ok {
			hit.ParentID = domain.CategoryID(p)
		}
		if frags := h.Fragments["name"]; len(frags) > 0 {
			hit.Highlight = frags[0]
		}
		result.Hits = append(result.Hits, hit)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params Params) query.Query {
	var queries []query.Query

	if text := norm.NFC.String(strings.TrimSpace(params.Query)); text != "" {
		nameMatch := bleve.NewMatchQuery(text)
		nameMatch.SetField("name")
		nameMatch.SetBoost(3.0)

		textQueries := []query.Query{nameMatch}

		// Typo tolerance and autocomplete work on the last word being typed.
		words := strings.Fields(strings.ToLower(text))
		last := words[len(words)-1]

		fuzzyQuery := bleve.NewFuzzyQuery(last)
		fuzzyQuery.SetFuzziness(1)
		fuzzyQuery.SetField("name")
		fuzzyQuery.SetBoost(0.8)
		textQueries = append(textQueries, fuzzyQuery)

		if len([]rune(last)) >= 2 {
			prefixQuery := bleve.NewPrefixQuery(last)
			prefixQuery.SetField("name")
			prefixQuery.SetBoost(0.5)
			textQueries = append(textQueries, prefixQuery)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if params.Platform != "" {
		pq := bleve.NewTermQuery(string(params.Platform))
		pq.SetField("platform")
		queries = append(queries, pq)
	}

	if params.Restrict != nil {
		ids := make([]string, len(params.Restrict))
		for i, id := range params.Restrict {
			ids[i] = DocumentID(params.Platform, id)
		}
		queries = append(queries, bleve.NewDocIDQuery(ids))
	}

	if len(queries) == 0 {
		return bleve.NewMatchAllQuery()
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}
