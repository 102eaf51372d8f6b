package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(&r.RouterGroup)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveness(t *testing.T) {
	w := serve(NewHandler(Check{Name: "broker", Critical: true, Ping: failing}), "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP"}`, w.Body.String())
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks []Check
		code   int
		body   string
	}{
		{
			name:   "all up",
			checks: []Check{{Name: "broker", Critical: true, Ping: ok}, {Name: "presence_store", Ping: ok}},
			code:   http.StatusOK,
			body:   `{"status":"UP","components":{"broker":"UP","presence_store":"UP"}}`,
		},
		{
			name:   "store down is degraded",
			checks: []Check{{Name: "broker", Critical: true, Ping: ok}, {Name: "presence_store", Ping: failing}},
			code:   http.StatusOK,
			body:   `{"status":"DEGRADED","components":{"broker":"UP","presence_store":"DOWN"}}`,
		},
		{
			name:   "broker down",
			checks: []Check{{Name: "broker", Critical: true, Ping: failing}, {Name: "presence_store", Ping: failing}},
			code:   http.StatusServiceUnavailable,
			body:   `{"status":"DOWN","components":{"broker":"DOWN","presence_store":"DOWN"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(NewHandler(tt.checks...), "/health/ready")
			assert.Equal(t, tt.code, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}
