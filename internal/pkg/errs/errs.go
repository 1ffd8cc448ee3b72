/*
Package errs provides custom error types and application-level error code constants.

This file defines CustomError, which implements the error interface and carries a business
code, a client-safe message, an HTTP status, and optional field-level validation details.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"groupchat/internal/pkg/logx"
)

// FieldError describes one failed validation rule on an input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CustomError is the error structure returned by coordinator operations.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the client-safe error description.
	Message string

	// Status is the HTTP status code used when the error reaches an HTTP response.
	Status int

	// Fields lists validation failures. Only set for ErrInvalidParams.
	Fields []FieldError

	// cause is the underlying error, kept for logging and errors.Is/As.
	cause error
}

// Error implements the error interface.
func (e *CustomError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("error code %d (HTTP %d): %s: %v", e.Code, e.Status, e.Message, e.cause)
	}
	return fmt.Sprintf("error code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *CustomError) Unwrap() error { return e.cause }

// NewError builds a *CustomError from a predefined code.
// details are printf arguments for templates that contain a verb. For ErrUnknown and
// ErrStoreUnavailable an error in details[0] is kept as the cause instead.
// Unknown codes fall back to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	template, ok := errorMap[code]
	if !ok {
		logx.Error(
			fmt.Errorf("unknown error code %d", code),
			"Unknown error code requested",
			"requested_code", code,
		)
		template = errorMap[ErrUnknown]
	}

	customErr := template
	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if len(details) == 0 {
		return &customErr
	}

	if cause, ok := details[0].(error); ok && (code == ErrUnknown || code == ErrStoreUnavailable) {
		customErr.cause = cause
		return &customErr
	}

	if strings.Contains(customErr.Message, "%") {
		customErr.Message = fmt.Sprintf(customErr.Message, details...)
	} else {
		logx.Warn("Details provided for error without formatting placeholders. Details ignored.", "code", code)
	}

	return &customErr
}

// Wrap builds a *CustomError for code and records cause for logging.
func Wrap(code int, cause error) *CustomError {
	customErr := NewError(code)
	customErr.cause = cause
	return customErr
}

// Invalid builds an ErrInvalidParams error carrying field details.
func Invalid(fields ...FieldError) *CustomError {
	customErr := NewError(ErrInvalidParams)
	customErr.Fields = fields
	return customErr
}

// HasCode reports whether err is (or wraps) a *CustomError with the given code.
func HasCode(err error, code int) bool {
	var customErr *CustomError
	return errors.As(err, &customErr) && customErr.Code == code
}
