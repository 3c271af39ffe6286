// Package apperror defines the application error type surfaced at the
// HTTP edge. Internal code wraps errors with fmt.Errorf; handlers and
// services translate them into AppErrors where a status code matters.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError carries a stable machine code, an HTTP status and a
// human-readable message.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with an explicit code and status.
func New(code string, status int, message string) *AppError {
	return &AppError{Code: code, Status: status, Message: message}
}

// NewNotFound reports a missing resource.
func NewNotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "not_found",
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s %s not found", resource, id),
	}
}

// NewBadRequest reports invalid client input.
func NewBadRequest(message string) *AppError {
	return &AppError{Code: "bad_request", Status: http.StatusBadRequest, Message: message}
}

// NewConflict reports a uniqueness or state conflict.
func NewConflict(message string) *AppError {
	return &AppError{Code: "conflict", Status: http.StatusConflict, Message: message}
}

// NewInternal wraps an unexpected failure.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:    "internal_error",
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Err:     err,
	}
}

// AsAppError extracts an *AppError from an error chain, or wraps the
// error as internal if none is present.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternal(err)
}

// IsNotFound reports whether err is a not_found AppError.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == "not_found"
}
