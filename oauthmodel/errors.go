package oauthmodel

import (
	"net/http"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
)

// ErrorCode is an OAuth 2.0 error code (RFC 6749 §5.2, RFC 7591, RFC 8707).
type ErrorCode string

const (
	InvalidRequest          ErrorCode = "invalid_request"
	InvalidClient           ErrorCode = "invalid_client"
	InvalidGrant            ErrorCode = "invalid_grant"
	UnauthorizedClient      ErrorCode = "unauthorized_client"
	UnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	UnsupportedResponseType ErrorCode = "unsupported_response_type"
	InvalidScope            ErrorCode = "invalid_scope"
	InvalidTarget           ErrorCode = "invalid_target"
	InvalidRedirectURI      ErrorCode = "invalid_redirect_uri"
	InvalidClientMetadata   ErrorCode = "invalid_client_metadata"
	AccessDenied            ErrorCode = "access_denied"
	ServerError             ErrorCode = "server_error"
	TemporarilyUnavailable  ErrorCode = "temporarily_unavailable"
)

// Error is a protocol error. Two Errors match with errors.Is when their codes
// are equal, so callers can test against the sentinels below. Err carries the
// internal cause and is never rendered to the client.
type Error struct {
	Code        ErrorCode
	Description string
	Err         error
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidRequest         = &Error{Code: InvalidRequest}
	ErrInvalidClient          = &Error{Code: InvalidClient}
	ErrInvalidGrant           = &Error{Code: InvalidGrant}
	ErrUnauthorizedClient     = &Error{Code: UnauthorizedClient}
	ErrUnsupportedGrantType   = &Error{Code: UnsupportedGrantType}
	ErrUnsupportedResponse    = &Error{Code: UnsupportedResponseType}
	ErrInvalidScope           = &Error{Code: InvalidScope}
	ErrInvalidTarget          = &Error{Code: InvalidTarget}
	ErrInvalidClientMetadata  = &Error{Code: InvalidClientMetadata}
	ErrAccessDenied           = &Error{Code: AccessDenied}
	ErrServerError            = &Error{Code: ServerError}
	ErrTemporarilyUnavailable = &Error{Code: TemporarilyUnavailable}
)

// NewError creates a protocol error.
func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

// WrapError creates a protocol error caused by err.
func WrapError(code ErrorCode, description string, err error) *Error {
	return &Error{Code: code, Description: description, Err: err}
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Description
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// StatusCode is the HTTP status the error is reported with.
func (e *Error) StatusCode() int {
	switch e.Code {
	case InvalidClient:
		return http.StatusUnauthorized
	case AccessDenied:
		return http.StatusForbidden
	case ServerError:
		return http.StatusInternalServerError
	case TemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// FromError converts any error into a protocol error. Backend failures become
// temporarily_unavailable; anything unrecognised becomes server_error without
// exposing its text.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errs.As(err, &pe) {
		return pe
	}
	if errs.IsRetryable(err) {
		return WrapError(TemporarilyUnavailable, "the service is temporarily unavailable", err)
	}
	return WrapError(ServerError, "internal server error", err)
}
