// Package errors defines the typed errors shared across the proxy.
// Every failure that crosses a component boundary is an *AppError with a
// stable machine-readable kind, so the HTTP layer can translate it without
// string matching.
package errors

import (
	"fmt"
	"strings"
)

// ErrorType is the stable machine-readable kind of an error.
type ErrorType string

const (
	// ErrTypeUnknownProvider means the requested provider slug is not registered
	ErrTypeUnknownProvider ErrorType = "unknown_provider"
	// ErrTypeNoConnection means no stored credential exists for the provider/account
	ErrTypeNoConnection ErrorType = "no_connection"
	// ErrTypeTokenRefreshFailed means the provider rejected the refresh exchange
	ErrTypeTokenRefreshFailed ErrorType = "token_refresh_failed"
	// ErrTypeUpstream means the provider API could not be reached
	ErrTypeUpstream ErrorType = "upstream_error"
	// ErrTypeStorage means the underlying store failed
	ErrTypeStorage ErrorType = "storage_unavailable"
	// ErrTypeIntegrity means ciphertext failed authentication (tampered or wrong key)
	ErrTypeIntegrity ErrorType = "integrity_error"
	// ErrTypeFormat means a ciphertext envelope is malformed
	ErrTypeFormat ErrorType = "format_error"
	// ErrTypeInvalidState means an OAuth callback state is missing, expired or mismatched
	ErrTypeInvalidState ErrorType = "invalid_state"
	// ErrTypeMissingRefreshToken means the provider did not grant offline access
	ErrTypeMissingRefreshToken ErrorType = "missing_refresh_token"
	// ErrTypeValidation represents invalid input
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeAuth represents caller authentication failures
	ErrTypeAuth ErrorType = "authentication"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
)

// AppError is a structured application error. Message is safe to show to
// callers; secrets must never be placed in it.
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode attaches an upstream status or error code to the error.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// UnknownProviderError creates an error for an unregistered provider slug.
func UnknownProviderError(slug string) *AppError {
	return &AppError{Type: ErrTypeUnknownProvider, Message: fmt.Sprintf("unknown provider %q", slug)}
}

// NoConnectionError creates an error for a missing stored credential.
func NoConnectionError(provider, account string) *AppError {
	if account == "" {
		return &AppError{Type: ErrTypeNoConnection, Message: fmt.Sprintf("no connection for provider %q", provider)}
	}
	return &AppError{Type: ErrTypeNoConnection, Message: fmt.Sprintf("no connection for provider %q account %q", provider, account)}
}

// TokenRefreshFailedError creates an error for a rejected refresh exchange.
func TokenRefreshFailedError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeTokenRefreshFailed, Message: msg, Cause: cause}
}

// UpstreamError creates an error for a provider API that could not be reached.
func UpstreamError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeUpstream, Message: msg, Cause: cause}
}

// StorageError creates an error for an underlying store failure.
func StorageError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeStorage, Message: msg, Cause: cause}
}

// IntegrityError creates an error for ciphertext that failed authentication.
func IntegrityError(msg string) *AppError {
	return &AppError{Type: ErrTypeIntegrity, Message: msg}
}

// FormatError creates an error for a malformed ciphertext envelope.
func FormatError(msg string) *AppError {
	return &AppError{Type: ErrTypeFormat, Message: msg}
}

// InvalidStateError creates an error for a bad OAuth callback state.
func InvalidStateError(msg string) *AppError {
	return &AppError{Type: ErrTypeInvalidState, Message: msg}
}

// MissingRefreshTokenError creates an error for a grant without offline access.
func MissingRefreshTokenError(provider string) *AppError {
	return &AppError{
		Type:    ErrTypeMissingRefreshToken,
		Message: fmt.Sprintf("provider %q did not return a refresh token; request offline access", provider),
	}
}

// ValidationError creates a new validation error.
func ValidationError(msg string) *AppError {
	return &AppError{Type: ErrTypeValidation, Message: msg}
}

// ConfigError creates a new configuration error.
func ConfigError(msg string) *AppError {
	return &AppError{Type: ErrTypeConfig, Message: msg}
}

// AuthError creates a new caller authentication error.
func AuthError(msg string) *AppError {
	return &AppError{Type: ErrTypeAuth, Message: msg}
}

// NotFoundError creates a new not found error.
func NotFoundError(resource string) *AppError {
	return &AppError{Type: ErrTypeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// InternalError creates a new internal error.
func InternalError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeInternal, Message: msg, Cause: cause}
}

// IsType checks if an error is of a specific type.
func IsType(err error, errType ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == errType
}

// GetType returns the error type, defaulting to ErrTypeInternal for
// untyped errors.
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ErrTypeInternal
}

// HTTPStatus maps an error type to the status code the HTTP boundary
// responds with.
func HTTPStatus(err error) int {
	switch GetType(err) {
	case ErrTypeValidation, ErrTypeFormat:
		return 400
	case ErrTypeAuth, ErrTypeTokenRefreshFailed:
		return 401
	case ErrTypeInvalidState, ErrTypeMissingRefreshToken:
		return 400
	case ErrTypeUnknownProvider, ErrTypeNoConnection, ErrTypeNotFound:
		return 404
	case ErrTypeUpstream:
		return 502
	case ErrTypeStorage:
		return 503
	default:
		return 500
	}
}
