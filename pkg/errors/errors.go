package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes returned by the account security subsystem.
const (
	ErrCodeConflict              ErrorCode = "CONFLICT"
	ErrCodeInvalidInput          ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidPassword       ErrorCode = "INVALID_PASSWORD"
	ErrCodeInvalidCredentials    ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeAccountLocked         ErrorCode = "ACCOUNT_LOCKED"
	ErrCodeAccountDeactivated    ErrorCode = "ACCOUNT_DEACTIVATED"
	ErrCode2FARequired           ErrorCode = "TWO_FA_REQUIRED"
	ErrCode2FAInvalid            ErrorCode = "TWO_FA_INVALID"
	ErrCodeTokenInvalid          ErrorCode = "TOKEN_INVALID"
	ErrCodeTokenInvalidOrExpired ErrorCode = "TOKEN_INVALID_OR_EXPIRED"
	ErrCodeNotFound              ErrorCode = "NOT_FOUND"
	ErrCodeUnavailable           ErrorCode = "UNAVAILABLE"
)

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode              // Unique error code
	Message string                 // Human-readable error message
	Details map[string]interface{} // Optional additional details
	Err     error                  // Wrapped underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
// Errors that are not structured are reported as ErrCodeUnavailable.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeUnavailable
}

// GetDetails extracts the details from an error
// Returns nil if the error is not a structured Error
func GetDetails(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// PublicMessage returns the message safe to show to a caller.
// The wrapped cause is never included.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "service temporarily unavailable"
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeInvalidPassword, ErrCodeTokenInvalidOrExpired:
		return http.StatusBadRequest

	case ErrCodeInvalidCredentials, ErrCode2FARequired, ErrCode2FAInvalid, ErrCodeTokenInvalid:
		return http.StatusUnauthorized

	case ErrCodeAccountDeactivated:
		return http.StatusForbidden

	case ErrCodeNotFound:
		return http.StatusNotFound

	case ErrCodeConflict:
		return http.StatusConflict

	case ErrCodeAccountLocked:
		return http.StatusLocked

	case ErrCodeUnavailable:
		fallthrough
	default:
		return http.StatusServiceUnavailable
	}
}

// Unavailable wraps an infrastructure failure. The cause stays server side.
func Unavailable(err error) *Error {
	return Wrap(err, ErrCodeUnavailable, "service temporarily unavailable")
}

// InvalidInput creates an "invalid input" error
func InvalidInput(field, reason string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason))
}

// NotFound creates a "not found" error
func NotFound(resourceType string) *Error {
	return Newf(ErrCodeNotFound, "%s not found", resourceType)
}
