// Package apperror defines the domain error taxonomy shared by every layer.
//
// Services and runtimes return these errors; only the HTTP handlers translate
// them into status codes (see handler/response.go).
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrInitialization marks a heavyweight resource (interpreter, editor
	// bundle) whose load attempt failed. The attempt is over but the resource
	// can be requested again.
	ErrInitialization = errors.New("initialization failure")

	// ErrUnavailable marks a backend that is switched off or closed.
	ErrUnavailable = errors.New("unavailable")
)

type AppError struct {
	Err     error  // sentinel the error belongs to
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

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// InitializationFailed wraps the cause of a failed resource load.
//
// The cause stays reachable through errors.Is/As: InitializationFailed
// returns an error that unwraps to both ErrInitialization and cause.
func InitializationFailed(resource string, cause error) error {
	return &initError{
		AppError: AppError{
			Err:     ErrInitialization,
			Message: fmt.Sprintf("%s failed to initialize: %v", resource, cause),
		},
		cause: cause,
	}
}

// Unavailable returns an AppError for a resource that cannot serve requests.
func Unavailable(resource string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: fmt.Sprintf("%s is unavailable", resource),
	}
}

type initError struct {
	AppError
	cause error
}

func (e *initError) Unwrap() []error {
	return []error{e.AppError.Err, e.cause}
}

// As lets errors.As(err, **AppError) see the embedded AppError.
func (e *initError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = &e.AppError
		return true
	}
	return false
}
