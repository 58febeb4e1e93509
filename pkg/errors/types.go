package errors

import (
	"fmt"
	"log/slog"
)

// Error represents a structured error with a code, message, and optional cause.
//
// Error values are immutable once created. Use [Error.WithDetail] to derive a
// copy carrying extra diagnostic fields.
type Error struct {
	// Code is the machine-readable error code (e.g., "AUTH_004").
	Code Code

	// Message is the diagnostic message. It is written to the server log and
	// is never shown to the client verbatim.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Details contains additional structured data about the error, such as
	// the offending key ID or URL.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of this error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// LogLevel returns the level at which this error should be logged.
//
// Cryptographic and temporal failures are expected under hostile input and
// are logged at debug. Infrastructure failures block every federated login
// and are logged at error.
func (e *Error) LogLevel() slog.Level {
	switch e.Code.Category() {
	case CategoryAuthentication:
		return slog.LevelDebug
	case CategoryProtocol, CategoryPolicy:
		return slog.LevelInfo
	case CategoryUnavailable, CategoryInternal:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// WithDetail returns a new Error with a single detail key-value pair added.
// The original error is not modified.
func (e *Error) WithDetail(key string, value any) *Error {
	newDetails := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		newDetails[k] = v
	}
	newDetails[key] = value
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: newDetails,
	}
}

// Format implements fmt.Formatter. Use %+v to include details and the cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
