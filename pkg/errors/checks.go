package errors

import (
	"errors"
	"log/slog"
)

// AsError attempts to convert an error to an *Error, traversing the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the error code from an error, or "" if it carries none.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode checks if an error has the specified error code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// LogLevelOf returns the level err should be logged at. Errors that are not
// *Error values are logged at error level.
func LogLevelOf(err error) slog.Level {
	if e, ok := AsError(err); ok {
		return e.LogLevel()
	}
	return slog.LevelError
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsProtocol checks if the error is a protocol-format error (PROTO_xxx).
func IsProtocol(err error) bool {
	return hasCategory(err, CategoryProtocol)
}

// IsAuthentication checks if the error is an authentication error (AUTH_xxx).
func IsAuthentication(err error) bool {
	return hasCategory(err, CategoryAuthentication)
}

// IsPolicy checks if the error is a policy error (POLICY_xxx).
func IsPolicy(err error) bool {
	return hasCategory(err, CategoryPolicy)
}

// IsUnavailable checks if the error is a dependency failure (UNAVAIL_xxx).
func IsUnavailable(err error) bool {
	return hasCategory(err, CategoryUnavailable)
}

// IsInternal checks if the error is an internal error (INT_xxx).
func IsInternal(err error) bool {
	return hasCategory(err, CategoryInternal)
}

// IsRetryable reports whether a later attempt may succeed without the client
// changing its input. Only dependency failures qualify; every verification
// failure is terminal for the login attempt.
func IsRetryable(err error) bool {
	return IsUnavailable(err)
}
