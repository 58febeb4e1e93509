package auth

import (
	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
	"github.com/StricklySoft/bedrock-auth/pkg/lang"
)

// ErrorDescriptor explains why a login failed. Exactly one of Message and
// Diagnostic is set: Message when the failure has a player-facing
// translation, Diagnostic otherwise. Diagnostics are for the server log
// and are never shown to the client.
type ErrorDescriptor struct {
	Code       sserr.Code
	Message    *lang.Translatable
	Diagnostic string
}

// String returns a log-friendly rendering.
func (d *ErrorDescriptor) String() string {
	if d == nil {
		return ""
	}
	if d.Message != nil {
		return d.Message.String()
	}
	return d.Diagnostic
}

// DescribeError converts a verification error into a descriptor. Errors
// without a code are reported as [sserr.CodeInternal] diagnostics.
func DescribeError(err error) *ErrorDescriptor {
	if err == nil {
		return nil
	}
	code := sserr.FromError(err).Code
	if msg := DisconnectMessage(code); msg != nil {
		return &ErrorDescriptor{Code: code, Message: msg}
	}
	return &ErrorDescriptor{Code: code, Diagnostic: err.Error()}
}

// Outcome is the result of one login verification. A non-nil Error means
// the session must be disconnected whatever Authenticated says.
type Outcome struct {
	Authenticated      bool
	AuthRequired       bool
	Error              *ErrorDescriptor
	ClientPublicKeyDER []byte
}

// DisconnectMessage returns the player-facing message for a failure code,
// or nil if the code has none.
func DisconnectMessage(code sserr.Code) *lang.Translatable {
	switch code {
	case sserr.CodeBadSignature:
		return lang.BadSignature()
	case sserr.CodeTooEarly:
		return lang.TooEarly()
	case sserr.CodeTooLate:
		return lang.TooLate()
	case sserr.CodeMissingKey:
		return lang.MissingKey()
	case sserr.CodeAuthenticationRequired:
		return lang.NotAuthenticated()
	case sserr.CodeInvalidName:
		return lang.InvalidName()
	case sserr.CodeServerFull:
		return lang.ServerFull()
	case sserr.CodeNotWhitelisted:
		return lang.Whitelisted()
	default:
		return nil
	}
}
