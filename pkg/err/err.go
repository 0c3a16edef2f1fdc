package errprocess

import (
	"errors"
	"fmt"
	"net/http"

	"family_messaging_service/pkg/logger"
)

// Request-terminal error categories. Use cases wrap these with %w so
// transport handlers can map them with errors.Is; none of them is retried.
var (
	// ErrValidation bad input, operation aborted before any write
	ErrValidation = errors.New("validation failed")
	// ErrAccessDenied actor is not allowed to perform the operation
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound stale reference to a deleted or unknown entity
	ErrNotFound = errors.New("not found")
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Validation wraps ErrValidation with a reason.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// AccessDenied wraps ErrAccessDenied with a reason.
func AccessDenied(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrAccessDenied, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the missing entity name.
func NotFound(entity string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, entity)
}

// HTTPStatus map a taxonomy error to its response status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
