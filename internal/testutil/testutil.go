// Package testutil provides shared test helpers for the bedrock-auth
// packages.
//
// All helpers accept [testing.TB] for compatibility with both tests and
// benchmarks. Functions that halt the test on failure use [require] from
// testify; functions that record failures without stopping use [assert].
//
// Every helper calls t.Helper() so that failure messages report the
// caller's file and line rather than this package's.
//
// Key, token and identity-provider fixtures live in the fixtures
// subpackage.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

// RequireErrorCode halts the test if err is nil, is not an *sserr.Error,
// or does not carry the expected error code. This is the primary helper
// for checking how a verification failure was classified.
//
// Example:
//
//	_, err := v.ValidateChain(nil)
//	testutil.RequireErrorCode(t, err, sserr.CodeEmptyChain)
func RequireErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	ssErr, ok := sserr.AsError(err)
	require.True(t, ok, "expected *sserr.Error, got %T: %v", err, err)
	require.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// AssertErrorCode records a test failure (without halting) if err is nil,
// is not an *sserr.Error, or does not carry the expected error code.
// Use this in table-driven tests where every row should be checked. It
// returns whether the assertion passed.
func AssertErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	ssErr, ok := sserr.AsError(err)
	if !assert.True(t, ok, "expected *sserr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// TempFile creates a file with the given name and content inside
// t.TempDir(). The file is removed when the test finishes.
//
// The extension of name matters to the config loader, which picks the
// YAML or JSON decoder from it. The file is created with mode 0600.
func TempFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600), "failed to write temp file %s", path)
	return path
}
