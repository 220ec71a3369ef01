// Package liveerrors defines the error taxonomy shared by the live-stream
// coordination components. Every error carries a stable code that the REST
// layer maps onto the response envelope.
package liveerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned in the API envelope.
const (
	CodeAuthorization       = "authorization_error"
	CodeSessionNotJoinable  = "session_not_joinable"
	CodeInvalidState        = "invalid_state"
	CodeProviderUnavailable = "provider_unavailable"
	CodeDuplicatePublisher  = "duplicate_publisher"
	CodeTimedOut            = "timed_out"
	CodeNotFound            = "not_found"
)

// Error is a coded error with a human-readable message.
type Error struct {
	Code    string
	Message string
	Err     error // wrapped cause, optional
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors by code so sentinel comparisons work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Authorization reports a role or ownership mismatch.
func Authorization(msg string) *Error {
	return &Error{Code: CodeAuthorization, Message: msg}
}

// SessionNotJoinable reports a token request against a status outside the
// role's allowed set.
func SessionNotJoinable(msg string) *Error {
	return &Error{Code: CodeSessionNotJoinable, Message: msg}
}

// InvalidState reports an action incompatible with the session's status.
func InvalidState(msg string) *Error {
	return &Error{Code: CodeInvalidState, Message: msg}
}

// ProviderUnavailable wraps a failed call to the media room provider.
func ProviderUnavailable(msg string, cause error) *Error {
	return &Error{Code: CodeProviderUnavailable, Message: msg, Err: cause}
}

// DuplicatePublisher reports a second publisher joining a single-publisher room.
func DuplicatePublisher(msg string) *Error {
	return &Error{Code: CodeDuplicatePublisher, Message: msg}
}

// TimedOut reports a command that exceeded its deadline. The provider-side
// effect may or may not have happened; commands are idempotency-keyed so a
// retry is safe.
func TimedOut(msg string) *Error {
	return &Error{Code: CodeTimedOut, Message: msg}
}

// NotFound reports a missing session or resource.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// Code extracts the taxonomy code from err, or empty when err is untyped.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps a taxonomy code to an HTTP status.
func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeSessionNotJoinable, CodeInvalidState, CodeDuplicatePublisher:
		return http.StatusConflict
	case CodeProviderUnavailable:
		return http.StatusBadGateway
	case CodeTimedOut:
		return http.StatusGatewayTimeout
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
