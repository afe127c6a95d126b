package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid input", fmt.Errorf("%w: no facts provided", ErrInvalidInput), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: rule PORT-99", ErrNotFound), http.StatusNotFound},
		{"unavailable", fmt.Errorf("%w: narrator disabled", ErrUnavailable), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"app error passthrough", NewAppError(http.StatusTeapot, "teapot", nil), http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := MapError(tt.err)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}

	assert.Nil(t, MapError(nil))
}

func TestAppErrorDetails(t *testing.T) {
	cause := fmt.Errorf("%w: unknown method \"sideways\"", ErrInvalidInput)
	appErr := MapError(cause)

	assert.Equal(t, "Invalid request", appErr.Message)
	assert.Equal(t, cause.Error(), appErr.Details())
	assert.True(t, errors.Is(appErr, ErrInvalidInput))
	assert.Equal(t, "", NewAppError(http.StatusBadRequest, "bad", nil).Details())
}
