// Package errors provides the structured error type used across the login
// authentication pipeline. Every failure that can end a login attempt carries
// a machine-readable code so that the session layer can decide how to log it
// and which disconnect message (if any) to show the client.
//
// # Error Categories
//
//   - Protocol errors (PROTO_xxx): malformed tokens, unexpected JSON shapes,
//     unsupported authentication types
//   - Authentication errors (AUTH_xxx): bad signatures, tokens outside their
//     validity window, broken certificate chains, unknown signing keys
//   - Policy errors (POLICY_xxx): server full, banned, not whitelisted,
//     cancelled by a pre-login hook
//   - Unavailable errors (UNAVAIL_xxx): the identity provider could not be
//     reached or returned unusable documents
//   - Internal errors (INT_xxx): programming and configuration errors
//
// # Usage
//
//	err := errors.New(errors.CodeBadSignature, "invalid JWT signature")
//
//	if errors.IsAuthentication(err) {
//	    logger.Log(ctx, errors.LogLevelOf(err), "login rejected", "error", err)
//	}
package errors
