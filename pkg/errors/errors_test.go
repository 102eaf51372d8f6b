package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_StatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NotFound("notification", nil), http.StatusNotFound},
		{BadRequest("bad role", nil), http.StatusBadRequest},
		{Unauthorized(nil), http.StatusUnauthorized},
		{Forbidden("admins only"), http.StatusForbidden},
		{Unavailable("presence store", nil), http.StatusServiceUnavailable},
		{Internal(fmt.Errorf("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.StatusCode(), tt.err.Error())
	}
}

func TestAs_UnwrapsWrappedErrors(t *testing.T) {
	cause := fmt.Errorf("token expired")
	wrapped := fmt.Errorf("authenticate: %w", Unauthorized(cause))

	appErr, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ErrUnauthorized, appErr.Code)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "unauthorized: token expired", appErr.Error())

	_, ok = As(fmt.Errorf("plain"))
	assert.False(t, ok)
}
