package errors

// Code represents a machine-readable error code. Codes follow the pattern
// CATEGORY_XXX and are stable once assigned.
type Code string

// Category prefixes.
const (
	CategoryProtocol       = "PROTO"
	CategoryAuthentication = "AUTH"
	CategoryPolicy         = "POLICY"
	CategoryUnavailable    = "UNAVAIL"
	CategoryInternal       = "INT"
)

const (
	// Protocol errors (PROTO_xxx). Malformed client input.

	// CodeProtocol indicates a general protocol-format error.
	CodeProtocol Code = "PROTO_001"

	// CodeMalformedToken indicates a JWT could not be split or decoded.
	CodeMalformedToken Code = "PROTO_002"

	// CodeUnexpectedJSON indicates a JSON document did not have the expected shape.
	CodeUnexpectedJSON Code = "PROTO_003"

	// CodeUnsupportedAuthType indicates the declared authentication type is
	// neither Full nor SelfSigned.
	CodeUnsupportedAuthType Code = "PROTO_004"

	// Authentication errors (AUTH_xxx). Cryptographic and temporal failures.

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeTooLate indicates a token expired beyond the allowed clock drift.
	CodeTooLate Code = "AUTH_002"

	// CodeTooEarly indicates a token is not yet valid beyond the allowed clock drift.
	CodeTooEarly Code = "AUTH_003"

	// CodeBadSignature indicates a signature did not verify against the expected key.
	CodeBadSignature Code = "AUTH_004"

	// CodeMissingKey indicates a chain link did not declare identityPublicKey.
	CodeMissingKey Code = "AUTH_005"

	// CodeEmptyChain indicates a certificate chain with no links.
	CodeEmptyChain Code = "AUTH_006"

	// CodeInvalidIssuer indicates the iss claim did not match the key ring issuer.
	CodeInvalidIssuer Code = "AUTH_007"

	// CodeInvalidAudience indicates the aud claim did not match the expected audience.
	CodeInvalidAudience Code = "AUTH_008"

	// CodeUnknownKeyID indicates the token references a signing key the
	// identity provider does not publish.
	CodeUnknownKeyID Code = "AUTH_009"

	// CodeAuthenticationRequired indicates the client is not authenticated
	// but the server requires authentication.
	CodeAuthenticationRequired Code = "AUTH_010"

	// CodeInvalidPublicKey indicates an embedded public key could not be decoded.
	CodeInvalidPublicKey Code = "AUTH_011"

	// Policy errors (POLICY_xxx). Server-side admission decisions.

	// CodeInvalidName indicates the username does not satisfy naming rules.
	CodeInvalidName Code = "POLICY_001"

	// CodeServerFull indicates the server is at capacity.
	CodeServerFull Code = "POLICY_002"

	// CodeNotWhitelisted indicates the player is not on the whitelist.
	CodeNotWhitelisted Code = "POLICY_003"

	// CodeBanned indicates the player name or address is banned.
	CodeBanned Code = "POLICY_004"

	// CodeCancelled indicates a pre-login hook refused the player.
	CodeCancelled Code = "POLICY_005"

	// Unavailable errors (UNAVAIL_xxx). Remote dependencies.

	// CodeUnavailable indicates a general dependency failure.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeKeyFetch indicates the identity provider key set could not be
	// fetched or contained no usable keys.
	CodeKeyFetch Code = "UNAVAIL_002"

	// CodeUnavailableStore indicates the access-list store could not be reached.
	CodeUnavailableStore Code = "UNAVAIL_003"

	// CodeTimeout indicates verification did not complete in time.
	CodeTimeout Code = "UNAVAIL_004"

	// Internal errors (INT_xxx).

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_002"

	// CodeValidation indicates a configuration value failed validation.
	CodeValidation Code = "INT_003"

	// CodeValidationRequired indicates a required configuration value is missing.
	CodeValidationRequired Code = "INT_004"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
