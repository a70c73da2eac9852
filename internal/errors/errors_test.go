package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := NotFoundf("canonical category %s has no mapping", "42")

	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrAlreadyLinked))
	assert.Equal(t, "canonical category 42 has no mapping", err.Error())
}

func TestError_WrappedThroughFmt(t *testing.T) {
	err := fmt.Errorf("link: %w", AlreadyLinkedf("source_a/10 already linked"))

	assert.True(t, Is(err, ErrAlreadyLinked))

	var domainErr *Error
	assert.True(t, As(err, &domainErr))
	assert.Equal(t, CodeAlreadyLinked, domainErr.Code)
}

func TestError_CauseIsUnwrapped(t *testing.T) {
	cause := New("out of memory")
	err := EngineFailure(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeAlreadyLinked, http.StatusConflict},
		{CodeConflict, http.StatusConflict},
		{CodeInvalidArgument, http.StatusBadRequest},
		{CodeValidation, http.StatusBadRequest},
		{CodeEngineFailure, http.StatusInternalServerError},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestValidationWithDetails(t *testing.T) {
	err := ValidationWithDetails("validation failed", map[string]string{"name": "is required"})

	assert.Equal(t, CodeValidation, err.Code)
	assert.Equal(t, map[string]string{"name": "is required"}, err.Details)
	assert.True(t, Is(err, ErrValidation))
}
