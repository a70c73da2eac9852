package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/search"
	"github.com/shopzz/catmap/internal/service"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchCategories",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/search",
		Summary:     "Search categories",
		Description: "Full-text search over a session's category names, tolerant of typos and partial words",
		Tags:        []string{"Search"},
	}, s.handleSearch)
}

// SearchInput contains search parameters.
type SearchInput struct {
	ID            string `path:"id" doc:"Session ID"`
	Query         string `query:"q" doc:"Search text; empty matches everything"`
	Platform      string `query:"platform" enum:"canonical,source_a,source_b" doc:"Limit to one hierarchy"`
	AvailableOnly bool   `query:"available_only" doc:"Only categories still in the platform's pool; requires platform"`
	Limit         int    `query:"limit" minimum:"0" maximum:"200" doc:"Maximum hits (default 20)"`
}

// SearchOutput wraps search results for Huma.
type SearchOutput struct {
	Body *search.Result
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	result, err := s.services.Mappings.Search(ctx, input.ID, service.SearchRequest{
		Query:         input.Query,
		Platform:      domain.Platform(input.Platform),
		AvailableOnly: input.AvailableOnly,
		Limit:         input.Limit,
	})
	if err != nil {
		return nil, asAPIError(err)
	}
	return &SearchOutput{Body: result}, nil
}
