// Package domerrors carries coded errors across the fiscal core. Services
// return these instead of raising; callers branch on the code, and the
// surrounding application maps codes to user-facing responses.
package domerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeResourceNotFound            Code = "resource_not_found"
	CodeNotAllowed                  Code = "not_allowed"
	CodeCertificateFormatInvalid    Code = "certificate_format_invalid"
	CodeCertificatePasswordInvalid  Code = "certificate_password_invalid"
	CodeCertificateValidationFailed Code = "certificate_validation_failed"
	CodeCertificateNotInstalled     Code = "certificate_not_installed"
	CodeProviderNotFound            Code = "provider_not_found"
	CodeInvalidStatusTransition     Code = "invalid_status_transition"
	CodeTransmissionTimeout         Code = "transmission_timeout"
	CodeTransmissionRejected        Code = "transmission_rejected"
	CodeInvalidInput                Code = "invalid_input"
	CodeInternal                    Code = "internal_error"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	code  Code
	msg   string
	cause error
}

// New returns a coded error with the given message.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf returns a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a coded error carrying the underlying cause.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{code: code, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the classification of this error.
func (e *Error) Code() Code { return e.code }

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// coded error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// Retryable reports whether err belongs to the transient failure class the
// pipeline may retry or redeliver: endpoint timeouts and infrastructure
// errors, uncoded errors included. Coded business failures are terminal and
// must not be retried.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeTransmissionTimeout, CodeInternal:
		return true
	}
	return false
}
