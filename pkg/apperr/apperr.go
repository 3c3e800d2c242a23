// Package apperr provides the application error taxonomy shared by services
// and the HTTP layer. Validation failures, authorization denials, missing
// rows, duplicate-key races, and transient store outages each carry a
// distinct Code so callers can branch without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Error is a coded application error. Cause, when set, preserves the
// underlying failure for logs and errors.Is/As chains while Message stays
// safe to surface to users.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap returns a coded error that preserves cause for unwrapping.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Constructors for the common cases.

func InvalidArg(msg string) error { return New(CodeInvalidArgument, msg) }

func NotFound(msg string) error { return New(CodeNotFound, msg) }

func AlreadyExists(msg string) error { return New(CodeAlreadyExists, msg) }

func Unauthenticated(msg string) error { return New(CodeUnauthenticated, msg) }

func PermissionDenied(msg string) error { return New(CodePermissionDenied, msg) }

func Unavailable(msg string, cause error) error { return Wrap(CodeUnavailable, msg, cause) }

func Internal(msg string, cause error) error { return Wrap(CodeInternal, msg, cause) }

// CodeOf extracts the Code from err, walking the unwrap chain. Errors that
// are not coded report CodeUnknown.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
