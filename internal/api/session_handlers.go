package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shopzz/catmap/internal/catalog"
	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/service"
)

// maxImportBytes bounds snapshot uploads.
const maxImportBytes = 64 << 20

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createSession",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Create session",
		Description:   "Loads the three catalogs from the catalog directory into a new mapping session",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "listSessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List sessions",
		Description: "Returns stored sessions, most recently updated first",
		Tags:        []string{"Sessions"},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Get session",
		Description: "Returns a session with its resolution counts",
		Tags:        []string{"Sessions"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteSession",
		Method:        http.MethodDelete,
		Path:          "/api/v1/sessions/{id}",
		Summary:       "Delete session",
		Description:   "Deletes a session and its stored state",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "listCategories",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/categories/{platform}",
		Summary:     "List available categories",
		Description: "Returns the available pool of a platform, flat or nested by parent",
		Tags:        []string{"Sessions"},
	}, s.handleListCategories)

	huma.Register(s.api, huma.Operation{
		OperationID: "exportSession",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/export",
		Summary:     "Export session",
		Description: "Downloads the session state as a version 2.0 snapshot",
		Tags:        []string{"Sessions"},
	}, s.handleExportSession)

	huma.Register(s.api, huma.Operation{
		OperationID:  "importSession",
		Method:       http.MethodPost,
		Path:         "/api/v1/sessions/{id}/import",
		Summary:      "Import session",
		Description:  "Replaces the session state with a version 2.0 or legacy snapshot",
		Tags:         []string{"Sessions"},
		MaxBodyBytes: maxImportBytes,
		// Snapshots are decoded field by field and legacy ones have no schema.
		SkipValidateBody: true,
	}, s.handleImportSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "resetSession",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/reset",
		Summary:     "Reset session",
		Description: "Restores every pool from the baseline and clears all mappings",
		Tags:        []string{"Sessions"},
	}, s.handleResetSession)
}

// === DTOs ===

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	Name string `json:"name,omitempty" validate:"omitempty,max=200" doc:"Session name, defaults to a dated name"`
}

// CreateSessionInput wraps the create session request for Huma.
type CreateSessionInput struct {
	Body CreateSessionRequest
}

// SessionOutput wraps a session for Huma.
type SessionOutput struct {
	Body *service.SessionInfo
}

// ListSessionsResponse contains stored sessions.
type ListSessionsResponse struct {
	Sessions []domain.SessionSummary `json:"sessions" doc:"Stored sessions"`
}

// ListSessionsOutput wraps the list sessions response for Huma.
type ListSessionsOutput struct {
	Body ListSessionsResponse
}

// SessionPathInput addresses a session.
type SessionPathInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// ListCategoriesInput contains parameters for listing a pool.
type ListCategoriesInput struct {
	ID       string `path:"id" doc:"Session ID"`
	Platform string `path:"platform" enum:"canonical,source_a,source_b" doc:"Hierarchy"`
	Tree     bool   `query:"tree" doc:"Nest categories under their parents"`
}

// CategoriesResponse contains a platform's available categories.
type CategoriesResponse struct {
	Platform   domain.Platform   `json:"platform" doc:"Hierarchy"`
	Total      int               `json:"total" doc:"Number of available categories"`
	Categories []domain.Category `json:"categories,omitempty" doc:"Flat list, when tree is false"`
	Tree       []*catalog.Node   `json:"tree,omitempty" doc:"Nested roots, when tree is true"`
}

// CategoriesOutput wraps the categories response for Huma.
type CategoriesOutput struct {
	Body CategoriesResponse
}

// ExportOutput is the raw snapshot download.
type ExportOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

// ImportInput carries an uploaded snapshot.
type ImportInput struct {
	ID      string `path:"id" doc:"Session ID"`
	RawBody []byte `contentType:"application/json"`
}

// ImportResponse reports the detected snapshot format.
type ImportResponse struct {
	Format  string               `json:"format" doc:"Detected format: v2 or legacy"`
	Session *service.SessionInfo `json:"session" doc:"Session after import"`
}

// ImportOutput wraps the import response for Huma.
type ImportOutput struct {
	Body ImportResponse
}

// ResetRequest is the request body for resetting a session.
type ResetRequest struct {
	Confirm bool `json:"confirm" doc:"Must be true, reset discards every mapping"`
}

// ResetInput wraps the reset request for Huma.
type ResetInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body ResetRequest
}

// === Handlers ===

func (s *Server) handleCreateSession(ctx context.Context, input *CreateSessionInput) (*SessionOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, asAPIError(err)
	}

	info, err := s.services.Mappings.CreateSession(ctx, input.Body.Name)
	if err != nil {
		return nil, asAPIError(err)
	}
	return &SessionOutput{Body: info}, nil
}

func (s *Server) handleListSessions(ctx context.Context, _ *struct{}) (*ListSessionsOutput, error) {
	sessions, err := s.services.Mappings.ListSessions(ctx)
	if err != nil {
		return nil, asAPIError(err)
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}
	return &ListSessionsOutput{Body: ListSessionsResponse{Sessions: sessions}}, nil
}

func (s *Server) handleGetSession(ctx context.Context, input *SessionPathInput) (*SessionOutput, error) {
	info, err := s.services.Mappings.GetSession(ctx, input.ID)
	if err != nil {
		return nil, asAPIError(err)
	}
	return &SessionOutput{Body: info}, nil
}

func (s *Server) handleDeleteSession(ctx context.Context, input *SessionPathInput) (*struct{}, error) {
	if err := s.services.Mappings.DeleteSession(ctx, input.ID); err != nil {
		return nil, asAPIError(err)
	}
	return nil, nil
}

func (s *Server) handleListCategories(ctx context.Context, input *ListCategoriesInput) (*CategoriesOutput, error) {
	platform := domain.Platform(input.Platform)
	cats, err := s.services.Mappings.Categories(ctx, input.ID, platform)
	if err != nil {
		return nil, asAPIError(err)
	}

	resp := CategoriesResponse{Platform: platform, Total: len(cats)}
	if input.Tree {
		resp.Tree = catalog.BuildTree(cats)
	} else {
		resp.Categories = cats
	}
	return &CategoriesOutput{Body: resp}, nil
}

func (s *Server) handleExportSession(ctx context.Context, input *SessionPathInput) (*ExportOutput, error) {
	snap, err := s.services.Mappings.Export(ctx, input.ID)
	if err != nil {
		return nil, asAPIError(err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, asAPIError(fmt.Errorf("encode snapshot: %w", err))
	}

	filename := fmt.Sprintf("catmap-%s-%s.json", input.ID, snap.ExportedAt.UTC().Format("20060102-150405"))
	return &ExportOutput{
		ContentType:        "application/json",
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", filename),
		Body:               data,
	}, nil
}

func (s *Server) handleImportSession(ctx context.Context, input *ImportInput) (*ImportOutput, error) {
	format, err := s.services.Mappings.Import(ctx, input.ID, input.RawBody)
	if err != nil {
		return nil, asAPIError(err)
	}

	info, err := s.services.Mappings.GetSession(ctx, input.ID)
	if err != nil {
		return nil, asAPIError(err)
	}
	return &ImportOutput{Body: ImportResponse{Format: format, Session: info}}, nil
}

func (s *Server) handleResetSession(ctx context.Context, input *ResetInput) (*SessionOutput, error) {
	if err := s.services.Mappings.Reset(ctx, input.ID, input.Body.Confirm); err != nil {
		return nil, asAPIError(err)
	}

	info, err := s.services.Mappings.GetSession(ctx, input.ID)
	if err != nil {
		return nil, asAPIError(err)
	}
	return &SessionOutput{Body: info}, nil
}
