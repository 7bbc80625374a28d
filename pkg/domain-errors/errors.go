// Package domainerrors carries coded errors across service boundaries.
//
// Services return *Error values so transports can map a Code to a status
// without string matching. Stores never construct these directly; they return
// sentinel facts (see pkg/platform/sentinel) which services translate.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure that callers are expected to react to.
type Code string

const (
	// Generic codes.
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"

	// Emergency verification codes.
	CodeNotConfigured     Code = "not_configured"
	CodeAlreadyInProgress Code = "already_in_progress"
	CodeAlreadyOpen       Code = "already_open"
	CodeInvalidStep       Code = "invalid_step"
	CodeSessionClosed     Code = "session_closed"
	CodeStoreUnavailable  Code = "store_unavailable"
)

// Error is a coded, optionally wrapped error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// From returns the outermost *Error in the chain, if any.
func From(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost coded error in the chain has code.
func HasCode(err error, code Code) bool {
	de, ok := From(err)
	return ok && de.Code == code
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// IsRetryable reports whether the failure is a transient infrastructure error.
func IsRetryable(err error) bool {
	return HasCode(err, CodeStoreUnavailable) || HasCode(err, CodeTimeout)
}
