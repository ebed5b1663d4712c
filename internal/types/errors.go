package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants. Handlers and services use these constants
// instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationNoOccurrence ErrorCode = "validation_no_occurrence"
	ErrCodeValidationMissingTime  ErrorCode = "validation_missing_time"
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationBadTimestamp ErrorCode = "validation_invalid_timestamp"
	ErrCodeValidationBadInventory ErrorCode = "validation_invalid_inventory"

	// Access (401/403)
	ErrCodeAccessUserUnknown  ErrorCode = "access_user_unknown"
	ErrCodeAccessTokenInvalid ErrorCode = "access_token_invalid"
	ErrCodeAccessReadOnly     ErrorCode = "access_read_only"
	ErrCodeAccessDenied       ErrorCode = "access_denied"

	// Conflict (409)
	ErrCodeBusySaveInFlight ErrorCode = "busy_save_in_flight"

	// Not Found (404)
	ErrCodeNotFoundEntry ErrorCode = "not_found_entry"
	ErrCodeNotFoundGroup ErrorCode = "not_found_group"
	ErrCodeNotFoundScope ErrorCode = "not_found_scope"

	// Remote store (502)
	ErrCodeRemoteUnavailable ErrorCode = "remote_unavailable"
	ErrCodeRemoteStatus      ErrorCode = "remote_bad_status"
	ErrCodeRemoteSaveFailed  ErrorCode = "remote_save_failed"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case s == string(ErrCodeAccessUserUnknown), s == string(ErrCodeAccessTokenInvalid):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "access_"):
		return http.StatusForbidden
	case strings.HasPrefix(s, "busy_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "remote_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. All domain and handler
// errors are expressed as AppError to enable consistent formatting, HTTP
// status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
