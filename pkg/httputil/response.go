package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/task-notifier/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, NewSuccessResponse(data))
}

// RespondWithError maps AppErrors onto their status; anything else is a 500 with a
// generic message.
func RespondWithError(c *gin.Context, err error) {
	if appErr, ok := errors.As(err); ok {
		c.AbortWithStatusJSON(appErr.StatusCode(), NewErrorResponse(appErr.Message))
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, NewErrorResponse("internal server error"))
}
