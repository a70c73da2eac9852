package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shopzz/catmap/internal/domain"
)

func (s *Server) registerAutoMapRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "startAutoMap",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions/{id}/automap",
		Summary:       "Start auto-map",
		Description:   "Runs the matching engine in the background and applies its proposals when it finishes",
		Tags:          []string{"Auto-map"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleStartAutoMap)

	huma.Register(s.api, huma.Operation{
		OperationID: "getJob",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job",
		Description: "Returns an auto-map job with its progress messages",
		Tags:        []string{"Auto-map"},
	}, s.handleGetJob)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancelJob",
		Method:      http.MethodDelete,
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Cancel job",
		Description: "Cancels a running auto-map job; its proposals are discarded",
		Tags:        []string{"Auto-map"},
	}, s.handleCancelJob)
}

// StartAutoMapRequest is the request body for starting an auto-map job.
type StartAutoMapRequest struct {
	Threshold float64 `json:"threshold,omitempty" doc:"Fuzzy acceptance threshold in [0, 1); omitted or 0 uses the server default"`
}

// StartAutoMapInput wraps the start request for Huma.
type StartAutoMapInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body StartAutoMapRequest
}

// JobPathInput addresses a job.
type JobPathInput struct {
	ID string `path:"id" doc:"Job ID"`
}

// JobOutput wraps a job for Huma.
type JobOutput struct {
	Body *domain.AutoMapJob
}

func (s *Server) handleStartAutoMap(ctx context.Context, input *StartAutoMapInput) (*JobOutput, error) {
	job, err := s.services.AutoMap.Start(ctx, input.ID, input.Body.Threshold)
	if err != nil {
		return nil, asAPIError(err)
	}
	return &JobOutput{Body: job}, nil
}

func (s *Server) handleGetJob(ctx context.Context, input *JobPathInput) (*JobOutput, error) {
	job, err := s.services.AutoMap.Get(ctx, input.ID)
	if err != nil {
		return nil, asAPIError(err)
	}
	return &JobOutput{Body: job}, nil
}

func (s *Server) handleCancelJob(ctx context.Context, input *JobPathInput) (*JobOutput, error) {
	job, err := s.services.AutoMap.Cancel(ctx, input.ID)
	if err != nil {
		return nil, asAPIError(err)
	}
	return &JobOutput{Body: job}, nil
}
