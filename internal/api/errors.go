package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/inkwell-cms/inkwell/internal/posts"
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// toAPIError maps a service error to its transport representation. Cache
// failures never reach this point; only durable-store and domain errors do.
func toAPIError(err error) *Error {
	switch {
	case errors.Is(err, posts.ErrNotFound):
		return NewError(http.StatusNotFound, "post not found")
	case errors.Is(err, posts.ErrConflict):
		return NewError(http.StatusConflict, "slug already in use")
	case errors.Is(err, posts.ErrAlreadyLiked):
		return NewError(http.StatusConflict, "already liked")
	case errors.Is(err, posts.ErrNotLiked):
		return NewError(http.StatusConflict, "not liked")
	default:
		return NewError(http.StatusInternalServerError, "internal error")
	}
}
