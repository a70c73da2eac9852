package api

import (
	"github.com/danielgtaylor/huma/v2"
)

// EnvelopeVersion is the response envelope format version.
const EnvelopeVersion = 1

// Envelope wraps every JSON response body.
// Success responses carry data; errors carry code, message and details.
type Envelope struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// EnvelopeTransformer is a huma transformer that wraps response bodies.
func EnvelopeTransformer(_ huma.Context, _ string, v any) (any, error) {
	if apiErr, ok := v.(*APIError); ok {
		return Envelope{
			Version: EnvelopeVersion,
			Success: false,
			Error:   apiErr.Message,
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		}, nil
	}
	return Envelope{
		Version: EnvelopeVersion,
		Success: true,
		Data:    v,
	}, nil
}
