package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/task-notifier/pkg/errors"
	"github.com/jwalitptl/task-notifier/pkg/httputil"
)

// ErrorHandler renders errors attached with c.Error once the handler chain has run.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last().Err
		status := http.StatusInternalServerError
		message := "internal server error"
		if appErr, ok := errors.As(lastErr); ok {
			status = appErr.StatusCode()
			if status < http.StatusInternalServerError {
				message = appErr.Message
			}
		}

		c.JSON(status, httputil.NewErrorResponse(message))
	}
}
