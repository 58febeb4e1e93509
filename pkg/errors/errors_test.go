package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode_Category(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code Code
		want string
	}{
		{CodeMalformedToken, CategoryProtocol},
		{CodeBadSignature, CategoryAuthentication},
		{CodeServerFull, CategoryPolicy},
		{CodeKeyFetch, CategoryUnavailable},
		{CodeInternalConfiguration, CategoryInternal},
		{Code("NOPREFIX"), "NOPREFIX"},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Category())
		})
	}
}

func TestError_Error(t *testing.T) {
	t.Parallel()
	err := New(CodeBadSignature, "invalid JWT signature")
	assert.Equal(t, "AUTH_004: invalid JWT signature", err.Error())

	wrapped := Wrap(errors.New("crypto/rsa: verification error"), CodeBadSignature, "invalid JWT signature")
	assert.Equal(t, "AUTH_004: invalid JWT signature: crypto/rsa: verification error", wrapped.Error())
}

func TestError_Format(t *testing.T) {
	t.Parallel()
	err := New(CodeUnknownKeyID, "key not recognised").WithDetail("kid", "abc")
	assert.Equal(t, `Error{Code: "AUTH_009", Message: "key not recognised", Details: map[kid:abc]}`, fmt.Sprintf("%+v", err))
	assert.Equal(t, "AUTH_009: key not recognised", fmt.Sprintf("%v", err))
	assert.Equal(t, `"AUTH_009: key not recognised"`, fmt.Sprintf("%q", err))
}

func TestError_WithDetail_DoesNotMutate(t *testing.T) {
	t.Parallel()
	base := New(CodeKeyFetch, "fetch failed")
	derived := base.WithDetail("url", "https://example.invalid")
	assert.Nil(t, base.Details)
	assert.Equal(t, "https://example.invalid", derived.Details["url"])
}

func TestWrap_NilReturnsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Wrap(nil, CodeInternal, "x"))
	assert.Nil(t, Wrapf(nil, CodeInternal, "x %d", 1))
}

func TestFromError(t *testing.T) {
	t.Parallel()
	assert.Nil(t, FromError(nil))

	orig := New(CodeTooLate, "JWT expired")
	assert.Same(t, orig, FromError(fmt.Errorf("outer: %w", orig)))

	plain := FromError(errors.New("boom"))
	require.NotNil(t, plain)
	assert.Equal(t, CodeInternal, plain.Code)
}

func TestConvenienceConstructors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  *Error
		code Code
		msg  string
	}{
		{"Protocol", Protocol("bad packet"), CodeProtocol, "bad packet"},
		{"Protocolf", Protocolf("got %d links", 4), CodeProtocol, "got 4 links"},
		{"Validation", Validation("workers must be positive"), CodeValidation, "workers must be positive"},
		{"Validationf", Validationf("max players %d", -1), CodeValidation, "max players -1"},
		{"Internal", Internal("pool already started"), CodeInternal, "pool already started"},
		{"Internalf", Internalf("task panicked: %v", "boom"), CodeInternal, "task panicked: boom"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, tc.msg, tc.err.Message)
			assert.Nil(t, tc.err.Cause)
		})
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, slog.LevelDebug, New(CodeBadSignature, "").LogLevel())
	assert.Equal(t, slog.LevelInfo, New(CodeUnsupportedAuthType, "").LogLevel())
	assert.Equal(t, slog.LevelError, New(CodeKeyFetch, "").LogLevel())
	assert.Equal(t, slog.LevelError, LogLevelOf(errors.New("plain")))
	assert.Equal(t, slog.LevelDebug, LogLevelOf(fmt.Errorf("ctx: %w", New(CodeTooEarly, ""))))
}

func TestCategoryChecks(t *testing.T) {
	t.Parallel()
	assert.True(t, IsProtocol(New(CodeUnexpectedJSON, "")))
	assert.True(t, IsAuthentication(New(CodeEmptyChain, "")))
	assert.True(t, IsPolicy(New(CodeBanned, "")))
	assert.True(t, IsUnavailable(New(CodeKeyFetch, "")))
	assert.True(t, IsInternal(New(CodeValidation, "")))
	assert.False(t, IsAuthentication(errors.New("plain")))

	assert.True(t, IsRetryable(New(CodeKeyFetch, "")))
	assert.False(t, IsRetryable(New(CodeBadSignature, "")))

	assert.True(t, HasCode(fmt.Errorf("wrapped: %w", New(CodeMissingKey, "")), CodeMissingKey))
	assert.Equal(t, Code(""), GetCode(nil))
}
