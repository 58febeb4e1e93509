package errors

import (
	"errors"
	"fmt"
)

// New creates a new Error with the specified code and message.
// Use this for creating errors without an underlying cause.
//
// Example:
//
//	err := errors.New(errors.CodeMissingKey, "auth: missing identityPublicKey in chain link")
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with the specified code and formatted message.
// Use this for creating errors with dynamic content in the message.
//
// Example:
//
//	err := errors.Newf(errors.CodeUnknownKeyID, "unrecognized authentication key ID: %s", kid)
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
// The wrapped error becomes the Cause of the new error.
// If err is nil, Wrap returns nil.
//
// Example:
//
//	tok, parts, err := parser.ParseUnverified(raw, claims)
//	if err != nil {
//	    return errors.Wrap(err, errors.CodeMalformedToken, "auth: malformed token")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with a formatted message.
// The wrapped error becomes the Cause of the new error.
// If err is nil, Wrapf returns nil.
//
// Example:
//
//	err := errors.Wrapf(err, errors.CodeKeyFetch, "auth: failed accessing %q", url)
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Protocol creates a new protocol-format error.
// This is a convenience function equivalent to New(CodeProtocol, message).
//
// Example:
//
//	err := errors.Protocol("login: unexpected packet during verification")
func Protocol(message string) *Error {
	return New(CodeProtocol, message)
}

// Protocolf creates a new protocol-format error with a formatted message.
//
// Example:
//
//	err := errors.Protocolf("login: expected 1 to %d chain links, got %d", max, n)
func Protocolf(format string, args ...any) *Error {
	return Newf(CodeProtocol, format, args...)
}

// Validation creates a new configuration validation error.
// This is a convenience function equivalent to New(CodeValidation, message).
//
// Example:
//
//	err := errors.Validation("auth: http_timeout must be positive")
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a new configuration validation error with a formatted
// message.
//
// Example:
//
//	err := errors.Validationf("login: max players must be positive, got %d", n)
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// Internal creates a new internal error.
// Use this for programming errors and broken invariants, never for
// failures caused by client input.
//
// Example:
//
//	err := errors.Internal("scheduler: pool already started")
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Internalf creates a new internal error with a formatted message.
//
// Example:
//
//	err := errors.Internalf("scheduler: task panicked: %v", r)
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// FromError converts a standard error to an Error.
// If the error is already an *Error (anywhere in its chain) it is returned
// as-is. Otherwise it is wrapped as an internal error.
//
// Example:
//
//	e := errors.FromError(err)
//	logger.Log(ctx, e.LogLevel(), "login failed", "code", e.Code)
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
