// Package domainerrors defines coded errors shared by services and transports.
//
// Stores return infrastructure facts (see pkg/platform/sentinel). Services translate
// those facts into a coded *Error so transports can map them without inspecting
// messages. Every code is terminal for the operation that raised it.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the kind of a domain error.
type Code string

const (
	// Registration admissibility.
	CodeEventIsDraft      Code = "event_is_draft"
	CodeDeadlinePassed    Code = "deadline_passed"
	CodeAtCapacity        Code = "at_capacity"
	CodeAlreadyRegistered Code = "already_registered"
	CodeNotRegistered     Code = "not_registered"
	CodeChildNotFound     Code = "child_not_found"

	// Waiver signing.
	CodeWaiverNotApplicable Code = "waiver_not_applicable"
	CodeAlreadySigned       Code = "already_signed"

	// Catalog and lookups.
	CodeDuplicateName Code = "duplicate_name"
	CodeNotFound      Code = "not_found"

	// Concurrency and collaborators.
	CodeTryAgain                Code = "try_again"
	CodeCollaboratorUnavailable Code = "collaborator_unavailable"
	CodeTimeout                 Code = "timeout"
	CodeRateLimited             Code = "rate_limited"

	// Input and access.
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"

	CodeInternal Code = "internal_error"
)

// Error is a domain error carrying a stable code and a client-safe message.
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
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code to an underlying error. The cause stays reachable with errors.Is.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether err (or anything it wraps) is a domain error with code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost domain error in err's chain,
// or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
