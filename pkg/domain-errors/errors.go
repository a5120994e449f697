// Package domainerrors provides the coded error taxonomy shared by services
// and transport. Services construct coded errors at the point where an
// infrastructure fact (sentinel error) or a rule violation becomes a
// caller-visible outcome; handlers translate codes into HTTP responses.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a category of failure. Codes are stable API: clients match
// on them, so renaming a code is a breaking change.
type Code string

const (
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeValidationFailed  Code = "VALIDATION_FAILED"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeNotOwner          Code = "NOT_OWNER"
	CodeNotFound          Code = "NOT_FOUND"
	CodeAlreadySigned     Code = "ALREADY_SIGNED"
	CodeAlreadyVerified   Code = "ALREADY_VERIFIED"
	CodeInvalidSignature  Code = "INVALID_SIGNATURE"
	CodeLedgerUnavailable Code = "LEDGER_UNAVAILABLE"
	CodeInternal          Code = "INTERNAL"
)

// Error carries a code, a human-readable message, and an optional cause.
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

func (e *Error) Unwrap() error { return e.Err }

// Is matches another coded error with the same code and message, so
// errors.Is works against freshly constructed sentinels in callers and
// tests.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a coded error around a cause so the chain stays inspectable
// with errors.Is/As.
func Wrap(code Code, message string, err error) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is a legacy alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal for
// uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-facing message, hiding internal causes.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to its HTTP status. Unknown codes map to 500 so a
// missing entry fails safe rather than leaking a 200.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeValidationFailed, CodeInvalidState, CodeAlreadySigned, CodeAlreadyVerified, CodeInvalidSignature:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeNotOwner:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
