package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes carried to clients over both the websocket error event
// and the internal HTTP surface.
const (
	CodeValidation       = "VALIDATION"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return New(http.StatusBadRequest, CodeValidation, fmt.Errorf(format, args...))
}

func PermissionDenied(format string, args ...interface{}) *Error {
	return New(http.StatusForbidden, CodePermissionDenied, fmt.Errorf(format, args...))
}

func NotFound(format string, args ...interface{}) *Error {
	return New(http.StatusNotFound, CodeNotFound, fmt.Errorf(format, args...))
}

// Conflict rejects a write that would violate an invariant. It maps to 400:
// the request is well-formed but impossible against current state, and
// clients branch on the code, not the status.
func Conflict(format string, args ...interface{}) *Error {
	return New(http.StatusBadRequest, CodeConflict, fmt.Errorf(format, args...))
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, CodeInternal, err)
}

// From maps an arbitrary error onto the taxonomy, defaulting to INTERNAL.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}
