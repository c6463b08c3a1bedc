// Package errors defines the domain error codes shared by services and the
// transport layer. Services return these; handlers translate them to HTTP
// statuses without inspecting error strings.
package errors

import (
	"errors"
	"net/http"
)

// Code identifies a class of domain failure.
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeNotFound          Code = "not_found"
	CodeUnauthorized      Code = "unauthorized"
	CodeInvalidState      Code = "invalid_state"
	CodeCapacityExceeded  Code = "capacity_exceeded"
	CodeAlreadySold       Code = "already_sold"
	CodeSelfTransfer      Code = "self_transfer"
	CodeNoValidContract   Code = "no_valid_contract"
	CodeLedgerUnavailable Code = "ledger_unavailable"
	CodeLedgerRejected    Code = "ledger_rejected"
	CodeInternal          Code = "internal_error"
)

// Error carries a code plus a human-readable message. It wraps an optional
// cause so callers can still unwrap infrastructure sentinels.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a domain error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a domain error that preserves the underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Retryable reports whether the failure is transient from the caller's point
// of view. Only ledger unavailability qualifies; an explicit on-chain revert
// must not be retried automatically.
func Retryable(err error) bool {
	return Is(err, CodeLedgerUnavailable)
}

// ToHTTPStatus maps a code to the HTTP status the transport layer should emit.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeInvalidState, CodeAlreadySold, CodeSelfTransfer, CodeNoValidContract:
		return http.StatusConflict
	case CodeCapacityExceeded:
		return http.StatusUnprocessableEntity
	case CodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	case CodeLedgerRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
