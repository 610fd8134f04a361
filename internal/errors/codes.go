package errors

import "net/http"

// ErrorCode represents a machine-readable error identifier for API clients.
type ErrorCode string

// Validation Errors (Request input validation)
const (
	ErrCodeMissingField   ErrorCode = "missing_field"
	ErrCodeInvalidField   ErrorCode = "invalid_field"
	ErrCodeInvalidBody    ErrorCode = "invalid_body"
	ErrCodeUnknownSetting ErrorCode = "unknown_setting"
)

// Access Errors
const (
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	ErrCodeRateLimited  ErrorCode = "rate_limited"
)

// Settings backend errors
const (
	ErrCodeSettingsUnavailable ErrorCode = "settings_unavailable"
	ErrCodeDatabaseError       ErrorCode = "database_error"
)

// Internal/System Errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable returns whether an error code represents a retryable error.
// Retryable errors are typically transient backend issues, not validation failures.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeSettingsUnavailable,
		ErrCodeDatabaseError,
		ErrCodeRateLimited:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidBody:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeUnknownSetting:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeSettingsUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
