package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a stable machine-readable error identifier. The prefix (the
// segment before the first underscore) determines the HTTP status, so new
// codes pick up sensible status mapping without touching the switch below.
type ErrorCode string

const (
	// Validation failures (400).
	ErrCodeValidationFailed              ErrorCode = "validation_failed"
	ErrCodeValidationBadJSON             ErrorCode = "validation_bad_json"
	ErrCodeValidationUnrecognizedPayload ErrorCode = "validation_unrecognized_payload"

	// Authentication / signature failures (401).
	ErrCodeAuthRequired         ErrorCode = "auth_required"
	ErrCodeAuthSignatureInvalid ErrorCode = "auth_signature_invalid"

	// Missing resources (404).
	ErrCodeNotFoundOrder ErrorCode = "not_found_order"
	ErrCodeNotFoundUser  ErrorCode = "not_found_user"

	// Conflicts (409, except the memo collision below).
	// A duplicate memo means two concurrent intents drew the same correlation
	// token; the client simply retries and gets a fresh one, so it maps to 503.
	ErrCodeConflictDuplicateMemo ErrorCode = "conflict_duplicate_memo"

	// Upstream provider failures. "rejected" is attributable to the request we
	// built (400); "unavailable" and "malformed" are the provider's fault (502).
	ErrCodeUpstreamProviderRejected    ErrorCode = "upstream_provider_rejected"
	ErrCodeUpstreamProviderUnavailable ErrorCode = "upstream_provider_unavailable"
	ErrCodeUpstreamProviderMalformed   ErrorCode = "upstream_provider_malformed"

	// Server-side faults (500).
	ErrCodeConfigMissingCredential ErrorCode = "config_missing_credential"
	ErrCodeInternalDatabase        ErrorCode = "internal_database"
	ErrCodeInternalServer          ErrorCode = "internal_server"
)

// HTTPStatus maps the code's prefix to a response status.
func (c ErrorCode) HTTPStatus() int {
	if c == ErrCodeConflictDuplicateMemo {
		return http.StatusServiceUnavailable
	}
	prefix, _, _ := strings.Cut(string(c), "_")
	switch prefix {
	case "validation":
		return http.StatusBadRequest
	case "auth":
		return http.StatusUnauthorized
	case "not":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "upstream":
		switch c {
		case ErrCodeUpstreamProviderRejected:
			return http.StatusBadRequest
		default:
			return http.StatusBadGateway
		}
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the error type crossing package boundaries. Code drives the
// HTTP mapping, Message is safe to return to clients, Err carries the wrapped
// cause for logs, Details is optional structured context (field errors etc.).
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]any
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError builds an AppError without a wrapped cause.
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// WrapAppError builds an AppError around an underlying cause.
func WrapAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// WithDetails attaches structured context and returns the same error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// AsAppError extracts an *AppError from an error chain, or wraps the error as
// an internal server error if none is present.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return WrapAppError(ErrCodeInternalServer, "internal server error", err)
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
