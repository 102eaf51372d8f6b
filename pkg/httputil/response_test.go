package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/task-notifier/pkg/errors"
)

func TestRespondWithError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"bad request", apperrors.BadRequest("invalid role", nil), http.StatusBadRequest, "invalid role"},
		{"wrapped forbidden", errors.Join(apperrors.Forbidden("insufficient role")), http.StatusForbidden, "insufficient role"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			RespondWithError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.message, resp.Message)
			assert.True(t, c.IsAborted())
		})
	}
}

func TestRespondWithSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondWithSuccess(c, http.StatusAccepted, gin.H{"recipients": 3})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"status":"success","data":{"recipients":3}}`, w.Body.String())
}
