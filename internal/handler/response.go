// Package handler holds the response envelope and helpers shared by every
// HTTP handler.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
)

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

// Error writes err with the status its error code maps to. Unknown error
// types come out as a plain 500 with a generic message so internal detail
// never leaks to clients.
func Error(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.StatusCode(), NewErrorResponse(appErr.Message))
		return
	}
	c.JSON(http.StatusInternalServerError, NewErrorResponse("internal error"))
}

// CallerID returns the authenticated user's ID set by the auth middleware.
func CallerID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// MustCallerID is CallerID plus the 401 write when the ID is missing. The
// bool reports whether the handler may continue.
func MustCallerID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("authentication required"))
	}
	return id, ok
}

// PathID parses a UUID path parameter, writing the 400 itself on failure.
func PathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
