package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/pkg/auth"
	"github.com/jwalitptl/task-notifier/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, jwtSvc *auth.JWTService, userID string, role model.Role) http.Header {
	t.Helper()
	token, err := jwtSvc.GenerateToken(auth.Claims{UserID: userID, Role: string(role)}, time.Hour)
	require.NoError(t, err)
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestAuthenticate(t *testing.T) {
	jwtSvc := auth.NewJWTService("test-secret", "task-service")
	mw := NewAuthMiddleware(jwtSvc)

	r := gin.New()
	r.GET("/me", mw.Authenticate(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(ContextUserID), "role": c.GetString(ContextUserRole)})
	})

	tests := []struct {
		name   string
		header http.Header
		status int
	}{
		{"missing header", nil, http.StatusUnauthorized},
		{"wrong scheme", http.Header{"Authorization": []string{"Basic abc"}}, http.StatusUnauthorized},
		{"bad token", http.Header{"Authorization": []string{"Bearer nope"}}, http.StatusUnauthorized},
		{"valid", bearer(t, jwtSvc, "U1", model.RoleTeamMember), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(r, http.MethodGet, "/me", tt.header)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	w := perform(r, http.MethodGet, "/me", bearer(t, jwtSvc, "U1", model.RoleTeamMember))
	assert.JSONEq(t, `{"user":"U1","role":"team_member"}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	jwtSvc := auth.NewJWTService("test-secret", "")
	mw := NewAuthMiddleware(jwtSvc)

	r := gin.New()
	r.POST("/admin", mw.Authenticate(), mw.RequireRole(model.RoleAdmin, model.RoleProjectManager), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodPost, "/admin", bearer(t, jwtSvc, "A", model.RoleAdmin)).Code)
	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodPost, "/admin", bearer(t, jwtSvc, "P", model.RoleProjectManager)).Code)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodPost, "/admin", bearer(t, jwtSvc, "M", model.RoleTeamMember)).Code)
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler())
	r.GET("/bad", func(c *gin.Context) { _ = c.Error(errors.BadRequest("invalid role", nil)) })
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(errors.Internal(assert.AnError)) })

	w := perform(r, http.MethodGet, "/bad", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"invalid role"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))

	w = perform(r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"internal server error"}`, w.Body.String())
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := perform(r, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestID_Propagates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	w := perform(r, http.MethodGet, "/", http.Header{HeaderXRequestID: []string{"req-1"}})
	assert.Equal(t, "req-1", w.Body.String())
	assert.Equal(t, "req-1", w.Header().Get(HeaderXRequestID))
}

func TestRequestID_ReplacesUnusableHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	for _, rid := range []string{strings.Repeat("x", 129), "two words"} {
		w := perform(r, http.MethodGet, "/", http.Header{HeaderXRequestID: []string{rid}})
		assert.NotEqual(t, rid, w.Body.String())
		assert.Len(t, w.Body.String(), 36)
		assert.Equal(t, w.Body.String(), w.Header().Get(HeaderXRequestID))
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 2})

	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, first("10.0.0.1"))
	assert.Equal(t, http.StatusOK, first("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, first("10.0.0.1"))
	assert.Equal(t, http.StatusOK, first("10.0.0.2"))
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://app.example.com"}

	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodOptions, "/", http.Header{"Origin": []string{"https://app.example.com"}})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	w = perform(r, http.MethodGet, "/", http.Header{"Origin": []string{"https://evil.example.com"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.POST("/", BodyLimit(16), func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	send := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send(`{"a":1}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, send(`{"message":"this is far too long"}`))
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
