package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

const (
	// MaxTokenSize bounds identity tokens and legacy chain links.
	MaxTokenSize = 16 * 1024

	// MaxClientDataSize bounds the client data token, which embeds skin,
	// geometry and cape data and routinely exceeds [MaxTokenSize].
	MaxClientDataSize = 4 * 1024 * 1024
)

// Algorithm is the signature family a token is verified with.
type Algorithm int

const (
	// AlgorithmRSA verifies RS256, used by the identity provider.
	AlgorithmRSA Algorithm = iota
	// AlgorithmEC verifies ES384, used by self-signed tokens.
	AlgorithmEC
)

func (a Algorithm) method() jwt.SigningMethod {
	if a == AlgorithmEC {
		return jwt.SigningMethodES384
	}
	return jwt.SigningMethodRS256
}

// OpenIDClaims are the claims of a federated identity token.
type OpenIDClaims struct {
	jwt.RegisteredClaims
	XUID            string `json:"xid"`
	Gamertag        string `json:"xname"`
	ClientPublicKey string `json:"cpk"`
}

// LegacyIdentityData is the extraData object of a self-signed chain link.
type LegacyIdentityData struct {
	DisplayName string `json:"displayName"`
	Identity    string `json:"identity"`
	XUID        string `json:"XUID"`
	TitleID     string `json:"titleId,omitempty"`
}

// LegacyClaims are the claims of a self-signed chain link.
type LegacyClaims struct {
	jwt.RegisteredClaims
	IdentityPublicKey string              `json:"identityPublicKey"`
	ExtraData         *LegacyIdentityData `json:"extraData,omitempty"`
}

// Token is a token split into its parts with the claims decoded but not yet
// verified.
type Token struct {
	Header       map[string]any
	SigningInput string
	Signature    []byte
}

// HeaderString returns a string header value, or "" if absent or not a
// string.
func (t *Token) HeaderString(name string) string {
	s, _ := t.Header[name].(string)
	return s
}

// ParseToken splits raw and decodes its claims into claims without
// verifying anything. Tokens longer than [MaxTokenSize] are rejected.
func ParseToken(raw string, claims jwt.Claims) (*Token, error) {
	return parseToken(raw, claims, MaxTokenSize)
}

func parseToken(raw string, claims jwt.Claims, limit int) (*Token, error) {
	if len(raw) > limit {
		return nil, sserr.Newf(sserr.CodeMalformedToken, "auth: token exceeds %d bytes", limit)
	}
	tok, parts, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeMalformedToken, "auth: malformed token")
	}
	sig, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[2], "="))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeMalformedToken, "auth: malformed token signature")
	}
	return &Token{
		Header:       tok.Header,
		SigningInput: parts[0] + "." + parts[1],
		Signature:    sig,
	}, nil
}

// Verify checks the token's signature against a DER encoded public key.
func (t *Token) Verify(der []byte, alg Algorithm) error {
	key, err := parseDERPublicKey(der)
	if err != nil {
		return err
	}
	switch alg {
	case AlgorithmRSA:
		if _, ok := key.(*rsa.PublicKey); !ok {
			return sserr.Newf(sserr.CodeInvalidPublicKey, "auth: expected RSA public key, got %T", key)
		}
	case AlgorithmEC:
		if _, ok := key.(*ecdsa.PublicKey); !ok {
			return sserr.Newf(sserr.CodeInvalidPublicKey, "auth: expected EC public key, got %T", key)
		}
	}
	if err := alg.method().Verify(t.SigningInput, t.Signature, key); err != nil {
		return classifyVerifyError(err)
	}
	return nil
}

// parseDERPublicKey parses a PKIX DER public key.
func parseDERPublicKey(der []byte) (any, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInvalidPublicKey, "auth: invalid DER public key")
	}
	return key, nil
}

// decodeKeyB64 decodes a base64 DER key as carried in x5u headers and
// identityPublicKey / cpk claims.
func decodeKeyB64(s, what string) ([]byte, error) {
	der, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil || len(der) == 0 {
		if err == nil {
			err = errors.New("empty key")
		}
		return nil, sserr.Wrapf(err, sserr.CodeInvalidPublicKey, "auth: invalid %s: base64 error decoding", what)
	}
	return der, nil
}

// classifyVerifyError maps golang-jwt verification errors onto error codes.
func classifyVerifyError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrInvalidKeyType), errors.Is(err, jwt.ErrInvalidKey):
		return sserr.Wrap(err, sserr.CodeInvalidPublicKey, "auth: key cannot verify this token")
	default:
		return sserr.Wrap(err, sserr.CodeBadSignature, "auth: invalid token signature")
	}
}
