package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific error type
type ErrorCode string

const (
	// Caller errors
	ErrInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"

	// System errors
	ErrLedgerUnavailable ErrorCode = "LEDGER_UNAVAILABLE"
	ErrInternalError     ErrorCode = "INTERNAL_ERROR"
)

// AppError is an error carrying a code the API layer can map to a response
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error // Underlying error, if any
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error in an AppError
func WrapError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsAppError checks if an error is an AppError and has a specific code
func IsAppError(err error, code ErrorCode) bool {
	var appErr *AppError
	if !As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// As finds the first AppError in err's chain
func As(err error, target **AppError) bool {
	if err == nil || target == nil {
		return false
	}
	return errors.As(err, target)
}

// CodeOf returns the code of the first AppError in err's chain, or
// ErrInternalError when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternalError
}
