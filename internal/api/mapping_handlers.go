package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/session"
)

func (s *Server) registerMappingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listMappings",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/mappings",
		Summary:     "List mappings",
		Description: "Returns every canonical mapping record in catalog order",
		Tags:        []string{"Mappings"},
	}, s.handleListMappings)

	huma.Register(s.api, huma.Operation{
		OperationID: "getMapping",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/mappings/{canonical_id}",
		Summary:     "Get mapping",
		Description: "Returns the mapping record of one canonical category",
		Tags:        []string{"Mappings"},
	}, s.handleGetMapping)

	huma.Register(s.api, huma.Operation{
		OperationID: "createLink",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/links",
		Summary:     "Link category",
		Description: "Links an external category to a canonical category",
		Tags:        []string{"Mappings"},
	}, s.handleLink)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteLink",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}/links",
		Summary:     "Unlink category",
		Description: "Removes one link and returns the external category to its pool",
		Tags:        []string{"Mappings"},
	}, s.handleUnlink)

	huma.Register(s.api, huma.Operation{
		OperationID: "markNotSold",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/mappings/{canonical_id}/not-sold",
		Summary:     "Mark not sold",
		Description: "Flags a canonical category as not sold on the marketplaces",
		Tags:        []string{"Mappings"},
	}, s.handleMarkNotSold)

	huma.Register(s.api, huma.Operation{
		OperationID: "unlinkAll",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}/mappings/{canonical_id}/links",
		Summary:     "Unlink all",
		Description: "Removes every link of a canonical category and clears its not-sold flag",
		Tags:        []string{"Mappings"},
	}, s.handleUnlinkAll)
}

// === DTOs ===

// MappingsResponse contains all mapping records of a session.
type MappingsResponse struct {
	Mappings []*domain.CanonicalMapping `json:"mappings" doc:"Mapping records"`
	Stats    session.Stats              `json:"stats" doc:"Resolution counts"`
}

// MappingsOutput wraps the mappings response for Huma.
type MappingsOutput struct {
	Body MappingsResponse
}

// MappingOutput wraps one mapping record for Huma.
type MappingOutput struct {
	Body *domain.CanonicalMapping
}

// MappingPathInput addresses one canonical category of a session.
type MappingPathInput struct {
	ID          string `path:"id" doc:"Session ID"`
	CanonicalID string `path:"canonical_id" doc:"Canonical category ID"`
}

// LinkRequest is the request body for linking a category.
type LinkRequest struct {
	CanonicalID  string `json:"canonical_id" validate:"required" doc:"Canonical category ID"`
	Platform     string `json:"platform" validate:"required,external_platform" doc:"source_a or source_b"`
	ExternalID   string `json:"external_id" validate:"required" doc:"External category ID"`
	ExternalName string `json:"external_name,omitempty" doc:"External category name, looked up when empty"`
}

// LinkInput wraps the link request for Huma.
type LinkInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body LinkRequest
}

// UnlinkInput identifies the link to remove.
type UnlinkInput struct {
	ID          string `path:"id" doc:"Session ID"`
	CanonicalID string `query:"canonical_id" required:"true" doc:"Canonical category ID"`
	Platform    string `query:"platform" required:"true" enum:"source_a,source_b" doc:"External platform"`
	ExternalID  string `query:"external_id" required:"true" doc:"External category ID"`
}

// === Handlers ===

func (s *Server) handleListMappings(ctx context.Context, input *SessionPathInput) (*MappingsOutput, error) {
	mappings, err := s.services.Mappings.Mappings(ctx, input.ID)
	if err != nil {
		return nil, asAPIError(err)
	}
	info, err := s.services.Mappings.GetSession(ctx, input.ID)
	if err != nil {
		return nil, asAPIError(err)
	}
	return &MappingsOutput{Body: MappingsResponse{Mappings: mappings, Stats: info.Stats}}, nil
}

func (s *Server) handleGetMapping(ctx context.Context, input *MappingPathInput) (*MappingOutput, error) {
	m, err := s.services.Mappings.Mapping(ctx, input.ID, domain.CategoryID(input.CanonicalID))
	if err != nil {
		return nil, asAPIError(err)
	}
	return &MappingOutput{Body: m}, nil
}

func (s *Server) handleLink(ctx context.Context, input *LinkInput) (*MappingOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, asAPIError(err)
	}

	m, err := s.services.Mappings.Link(ctx, input.ID,
		domain.CategoryID(input.Body.CanonicalID),
		domain.Platform(input.Body.Platform),
		domain.Category{
			ID:   domain.CategoryID(input.Body.ExternalID),
			Name: input.Body.ExternalName,
		})
	if err != nil {
		return nil, asAPIError(err)
	}
	return &MappingOutput{Body: m}, nil
}

func (s *Server) handleUnlink(ctx context.Context, input *UnlinkInput) (*MappingOutput, error) {
	m, err := s.services.Mappings.Unlink(ctx, input.ID,
		domain.CategoryID(input.CanonicalID),
		domain.Platform(input.Platform),
		domain.CategoryID(input.ExternalID))
	if err != nil {
		return nil, asAPIError(err)
	}
	return &MappingOutput{Body: m}, nil
}

func (s *Server) handleMarkNotSold(ctx context.Context, input *MappingPathInput) (*MappingOutput, error) {
	m, err := s.services.Mappings.MarkNotSold(ctx, input.ID, domain.CategoryID(input.CanonicalID))
	if err != nil {
		return nil, asAPIError(err)
	}
	return &MappingOutput{Body: m}, nil
}

func (s *Server) handleUnlinkAll(ctx context.Context, input *MappingPathInput) (*MappingOutput, error) {
	m, err := s.services.Mappings.UnlinkAll(ctx, input.ID, domain.CategoryID(input.CanonicalID))
	if err != nil {
		return nil, asAPIError(err)
	}
	return &MappingOutput{Body: m}, nil
}
