package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("unavailable")
)

type AppError struct {
	Err     error  // sentinel error for errors.Is checks
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation. Field names the column that
// collided (username or email) so callers can tell the two duplicate
// cases apart.
func Conflict(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
	}
}

// Unauthorized returns an AppError for missing or bad credentials.
// The message must stay generic: handlers never reveal whether the
// username, the password, or the API key was the part that failed.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Unavailable reports that a dependency (database, upstream service)
// could not be reached. Safe for the caller to retry with backoff.
func Unavailable(message string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
	}
}
