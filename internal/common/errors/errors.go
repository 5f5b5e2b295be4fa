// Package errors provides coded application errors shared by every layer of
// the service. Repositories and services return *AppError values; transports
// translate the code into an HTTP status or a gRPC code.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an application error.
type Code string

const (
	ErrCodeUnauthorized    Code = "UNAUTHORIZED"
	ErrCodeUnauthenticated Code = "UNAUTHENTICATED"
	ErrCodeInvalidState    Code = "INVALID_STATE"
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeConflict        Code = "CONFLICT"
	ErrCodeInternal        Code = "INTERNAL"
)

// AppError is an error carrying a Code and an optional offending field.
type AppError struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

// New creates an AppError with the given code.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. Wrapping an
// AppError keeps the innermost code unless the wrapper is more specific.
func Wrap(err error, code Code, message string) *AppError {
	if err == nil {
		return nil
	}
	var inner *AppError
	if stderrors.As(err, &inner) && code == ErrCodeInternal {
		code = inner.Code
	}
	return &AppError{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource string, id any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %v not found", resource, id)}
}

// InvalidInput reports a bad request field.
func InvalidInput(field, message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Field: field, Message: message}
}

// Unauthorized reports that the actor's role may not perform the action.
func Unauthorized(message string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: message}
}

// InvalidState reports that the target is not in a state allowing the action.
func InvalidState(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidState, Message: message}
}

// Conflict reports a write that lost a race with a concurrent transaction.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// CodeOf returns the code of the first AppError in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func IsNotFound(err error) bool     { return HasCode(err, ErrCodeNotFound) }
func IsUnauthorized(err error) bool { return HasCode(err, ErrCodeUnauthorized) }
func IsInvalidState(err error) bool { return HasCode(err, ErrCodeInvalidState) }
func IsInvalidInput(err error) bool { return HasCode(err, ErrCodeInvalidInput) }

// HTTPStatus maps a code onto a response status.
func HTTPStatus(code Code) int {
	switch code {
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case ErrCodeInvalidState, ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
