package auth

import (
	"bytes"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

// ClockDrift is the tolerance applied to nbf and exp.
const ClockDrift = 60 * time.Second

// ChainValidator verifies login tokens. It holds no mutable state and is
// safe to use from worker goroutines.
type ChainValidator struct {
	// Audience is the required aud claim of federated tokens.
	Audience string
	// RootKey is the DER key that marks a legacy chain as authenticated.
	// Nil never authenticates.
	RootKey []byte
	// Now defaults to time.Now.
	Now func() time.Time
}

// ChainResult is the outcome of walking a legacy chain.
type ChainResult struct {
	// IdentityKey is the identityPublicKey of the last link. It signs the
	// client data token.
	IdentityKey []byte
	// Authenticated is true if any link was signed by the root key.
	Authenticated bool
}

func (v ChainValidator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v ChainValidator) checkExpiry(nbf, exp *time.Time) error {
	now := v.now().Unix()
	drift := int64(ClockDrift / time.Second)
	if nbf != nil && nbf.Unix() > now+drift {
		return sserr.New(sserr.CodeTooEarly, "auth: token not yet valid")
	}
	if exp != nil && exp.Unix() < now-drift {
		return sserr.New(sserr.CodeTooLate, "auth: token expired")
	}
	return nil
}

// ValidateOpenIDToken verifies a federated identity token signed with
// signingKey (RSA) and requires its issuer and audience to match exactly.
func (v ChainValidator) ValidateOpenIDToken(raw string, signingKey []byte, issuer string) (*OpenIDClaims, error) {
	claims := &OpenIDClaims{}
	tok, err := ParseToken(raw, claims)
	if err != nil {
		return nil, err
	}
	if err := tok.Verify(signingKey, AlgorithmRSA); err != nil {
		return nil, err
	}
	if claims.Issuer == "" || claims.Issuer != issuer {
		return nil, sserr.Newf(sserr.CodeInvalidIssuer, "auth: invalid token issuer %q", claims.Issuer)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != v.Audience {
		return nil, sserr.Newf(sserr.CodeInvalidAudience, "auth: invalid token audience %v", []string(claims.Audience))
	}
	if err := v.checkExpiry(timeOf(claims.NotBefore), timeOf(claims.ExpiresAt)); err != nil {
		return nil, err
	}
	if claims.ClientPublicKey == "" {
		return nil, sserr.New(sserr.CodeMalformedToken, "auth: token has no cpk claim")
	}
	return claims, nil
}

// ValidateSelfSignedToken verifies a token signed (ES384) by the key in its
// own x5u header and returns that key. If expected is non-nil and differs
// from the header key the token is rejected without verifying.
func (v ChainValidator) ValidateSelfSignedToken(raw string, expected []byte) ([]byte, error) {
	_, signer, err := v.validateSelfSigned(raw, expected, nil, MaxTokenSize)
	return signer, err
}

// ValidateClientData verifies the client data token against the key
// established by the identity token or chain. Client data carries skin,
// geometry and cape images, so it is bounded by [MaxClientDataSize] rather
// than [MaxTokenSize]. Its validity window is not checked.
//
// Example:
//
//	res, err := v.ValidateChain(chain)
//	if err == nil {
//	    _, err = v.ValidateClientData(clientData, res.IdentityKey)
//	}
func (v ChainValidator) ValidateClientData(raw string, expected []byte) ([]byte, error) {
	_, signer, err := v.validateSelfSigned(raw, expected, nil, MaxClientDataSize)
	return signer, err
}

// ValidateLegacyToken validates one chain link: signature as for
// [ChainValidator.ValidateSelfSignedToken], then the validity window.
func (v ChainValidator) ValidateLegacyToken(raw string, expected []byte) (*LegacyClaims, []byte, error) {
	claims := &LegacyClaims{}
	_, signer, err := v.validateSelfSigned(raw, expected, claims, MaxTokenSize)
	if err != nil {
		return nil, nil, err
	}
	if err := v.checkExpiry(timeOf(claims.NotBefore), timeOf(claims.ExpiresAt)); err != nil {
		return nil, nil, err
	}
	return claims, signer, nil
}

func (v ChainValidator) validateSelfSigned(raw string, expected []byte, claims *LegacyClaims, limit int) (*Token, []byte, error) {
	if claims == nil {
		claims = &LegacyClaims{}
	}
	tok, err := parseToken(raw, claims, limit)
	if err != nil {
		return nil, nil, err
	}
	x5u := tok.HeaderString("x5u")
	if x5u == "" {
		return nil, nil, sserr.New(sserr.CodeMalformedToken, "auth: token header has no x5u")
	}
	signer, err := decodeKeyB64(x5u, "x5u header")
	if err != nil {
		return nil, nil, err
	}
	if expected != nil && !bytes.Equal(signer, expected) {
		return nil, nil, sserr.New(sserr.CodeBadSignature, "auth: token signed by unexpected key")
	}
	if err := tok.Verify(signer, AlgorithmEC); err != nil {
		return nil, nil, err
	}
	return tok, signer, nil
}

// ValidateChain walks a legacy chain. Each link must be signed by the
// identityPublicKey of the link before it; the first link is only
// self-consistent. The result is returned even when err is non-nil so
// callers can see whether a root-signed link was reached.
func (v ChainValidator) ValidateChain(chain []string) (ChainResult, error) {
	var res ChainResult
	if len(chain) == 0 {
		return res, sserr.New(sserr.CodeEmptyChain, "auth: no authentication chain links provided")
	}
	var expected []byte
	for i, link := range chain {
		claims, signer, err := v.ValidateLegacyToken(link, expected)
		if err != nil {
			return res, sserr.Wrap(err, sserr.GetCode(err), "auth: chain link rejected").
				WithDetail("link", i)
		}
		if v.RootKey != nil && bytes.Equal(signer, v.RootKey) {
			res.Authenticated = true
		}
		if claims.IdentityPublicKey == "" {
			return res, sserr.New(sserr.CodeMissingKey, "auth: missing identityPublicKey in chain link").
				WithDetail("link", i)
		}
		expected, err = decodeKeyB64(claims.IdentityPublicKey, "identityPublicKey")
		if err != nil {
			return res, err
		}
	}
	res.IdentityKey = expected
	return res, nil
}

func timeOf(d *jwt.NumericDate) *time.Time {
	if d == nil {
		return nil
	}
	return &d.Time
}
