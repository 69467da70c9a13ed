package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes shared by the gateway packages
const (
	// Generic errors
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Provider errors
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeAuthorizationDenied ErrorCode = "AUTHORIZATION_DENIED"
	ErrCodeBadProviderResponse ErrorCode = "BAD_PROVIDER_RESPONSE"
	ErrCodeProviderRejected    ErrorCode = "PROVIDER_REJECTED"

	// Identity operation errors
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeRegistrationFailed   ErrorCode = "REGISTRATION_FAILED"
	ErrCodeRefreshFailed        ErrorCode = "REFRESH_FAILED"
	ErrCodeRevocationFailed     ErrorCode = "REVOCATION_FAILED"
)

// DetailProviderBody is the detail key under which the raw provider response body is kept.
const DetailProviderBody = "provider_body"

// DetailProviderStatus is the detail key for the provider's HTTP status code.
const DetailProviderStatus = "provider_status"

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

// WithDetails adds multiple details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithProviderResponse records the provider status and raw body.
func (e *Error) WithProviderResponse(status int, body []byte) *Error {
	e.WithDetail(DetailProviderStatus, status)
	return e.WithDetail(DetailProviderBody, string(body))
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

// Wrapf wraps an existing error with code and formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsCode reports whether any structured Error in err's tree has the given code.
func IsCode(err error, code ErrorCode) bool {
	return walk(err, func(e *Error) bool {
		return e.Code == code
	})
}

// GetCode extracts the error code from an error
// Returns ErrCodeInternal if the error is not a structured Error
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
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

// ProviderBody returns the raw provider body recorded on err, if any.
func ProviderBody(err error) string {
	var body string
	walk(err, func(e *Error) bool {
		b, ok := e.Details[DetailProviderBody].(string)
		body = b
		return ok
	})
	return body
}

// ProviderStatus returns the provider HTTP status recorded on err, or 0.
func ProviderStatus(err error) int {
	var status int
	walk(err, func(e *Error) bool {
		s, ok := e.Details[DetailProviderStatus].(int)
		status = s
		return ok
	})
	return status
}

// walk visits every structured Error in err's tree, depth first, until visit
// returns true.
func walk(err error, visit func(*Error) bool) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok && visit(e) {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return walk(u.Unwrap(), visit)
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if walk(inner, visit) {
				return true
			}
		}
	}
	return false
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	// 400 Bad Request
	case ErrCodeInvalidInput:
		return http.StatusBadRequest

	// 401 Unauthorized
	case ErrCodeUnauthorized, ErrCodeAuthenticationFailed, ErrCodeRefreshFailed:
		return http.StatusUnauthorized

	// 409 Conflict
	case ErrCodeConflict:
		return http.StatusConflict

	// 429 Too Many Requests
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 502 Bad Gateway
	case ErrCodeAuthorizationDenied, ErrCodeBadProviderResponse, ErrCodeProviderRejected,
		ErrCodeRegistrationFailed, ErrCodeRevocationFailed:
		return http.StatusBadGateway

	// 503 Service Unavailable
	case ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable

	// 500 Internal Server Error (default)
	case ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors for frequently used errors

// InvalidInput creates an "invalid input" error
func InvalidInput(field, reason string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason))
}

// Unauthorized creates an "unauthorized" error
func Unauthorized(message string) *Error {
	return New(ErrCodeUnauthorized, message)
}

// Internal creates an "internal error"
func Internal(message string) *Error {
	return New(ErrCodeInternal, message)
}

// ProviderUnavailable wraps a transport failure talking to the identity provider.
func ProviderUnavailable(err error, operation string) *Error {
	return Wrapf(err, ErrCodeProviderUnavailable, "identity provider unreachable during %s", operation)
}

// BadProviderResponse reports a 2xx provider response the gateway could not use.
func BadProviderResponse(err error, operation string) *Error {
	if err == nil {
		return Newf(ErrCodeBadProviderResponse, "unusable provider response during %s", operation)
	}
	return Wrapf(err, ErrCodeBadProviderResponse, "unusable provider response during %s", operation)
}

// ProviderRejected reports a non-2xx provider response to an administrative call.
func ProviderRejected(status int, body []byte, operation string) *Error {
	return Newf(ErrCodeProviderRejected, "provider rejected %s with status %d", operation, status).
		WithProviderResponse(status, body)
}

// RateLimitExceeded creates a "rate limit exceeded" error
func RateLimitExceeded(retryAfter string) *Error {
	err := New(ErrCodeRateLimitExceeded, "rate limit exceeded")
	if retryAfter != "" {
		err.WithDetail("retry_after", retryAfter)
	}
	return err
}
