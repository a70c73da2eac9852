package validation_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopzz/catmap/internal/domain"
	domainerrors "github.com/shopzz/catmap/internal/errors"
	"github.com/shopzz/catmap/internal/validation"
)

type linkRequest struct {
	CanonicalID domain.CategoryID `json:"canonical_id" validate:"required"`
	Platform    string            `json:"platform" validate:"required,external_platform"`
	Threshold   float64           `json:"threshold" validate:"gt=0,lt=1"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(linkRequest{CanonicalID: "1", Platform: "source_a", Threshold: 0.8})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       linkRequest
		wantField string
		wantMsg   string
	}{
		{
			name:      "missing canonical id",
			req:       linkRequest{Platform: "source_a", Threshold: 0.5},
			wantField: "canonical_id",
			wantMsg:   "is required",
		},
		{
			name:      "canonical is not an external platform",
			req:       linkRequest{CanonicalID: "1", Platform: "canonical", Threshold: 0.5},
			wantField: "platform",
			wantMsg:   "must be one of: source_a source_b",
		},
		{
			name:      "threshold too high",
			req:       linkRequest{CanonicalID: "1", Platform: "source_b", Threshold: 1},
			wantField: "threshold",
			wantMsg:   "must be less than 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, details[tt.wantField])
		})
	}
}

func TestValidator_ValidateCategories(t *testing.T) {
	v := validation.New()

	err := v.ValidateCategories(domain.PlatformSourceA, []domain.Category{
		{ID: "1", Name: "Shoes"},
		{ID: "2", Name: "Boots", ParentID: "1"},
	})
	assert.NoError(t, err)

	err = v.ValidateCategories(domain.PlatformSourceA, []domain.Category{
		{ID: "1", Name: "Shoes"},
		{ID: "", Name: "No id"},
		{ID: "3", Name: ""},
		{ID: "1", Name: "Duplicate"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	var domainErr *domainerrors.Error
	require.True(t, errors.As(err, &domainErr))
	details := domainErr.Details.(map[string]string)
	assert.Equal(t, map[string]string{
		"[1].id": "is required",
		"[3].id": "duplicates entry [0]",
	}, details)
	assert.Contains(t, domainErr.Message, "source_a")
}
