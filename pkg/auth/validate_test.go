package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/bedrock-auth/internal/testutil"
	"github.com/StricklySoft/bedrock-auth/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testValidator() ChainValidator {
	return ChainValidator{
		Audience: fixtures.Audience,
		Now:      func() time.Time { return testNow },
	}
}

// legacyLink returns claims for a chain link declaring next as the identity
// key.
func legacyLink(next *fixtures.ECKey) jwt.MapClaims {
	return fixtures.Merge(fixtures.Window(testNow), jwt.MapClaims{
		"identityPublicKey": next.B64(),
	})
}

// ---------------------------------------------------------------------------
// Expiry window
// ---------------------------------------------------------------------------

func TestValidateLegacyToken_ExpiryBoundaries(t *testing.T) {
	t.Parallel()
	key := fixtures.NewECKey(t)
	nbf := testNow.Add(time.Hour)
	exp := testNow.Add(2 * time.Hour)
	token := fixtures.SelfSigned(t, key, jwt.MapClaims{
		"nbf":               nbf.Unix(),
		"exp":               exp.Unix(),
		"identityPublicKey": key.B64(),
	})

	tests := []struct {
		name string
		now  time.Time
		code sserr.Code
	}{
		{"earliest accepted", nbf.Add(-ClockDrift), ""},
		{"one second too early", nbf.Add(-ClockDrift - time.Second), sserr.CodeTooEarly},
		{"inside window", nbf.Add(30 * time.Minute), ""},
		{"latest accepted", exp.Add(ClockDrift), ""},
		{"one second too late", exp.Add(ClockDrift + time.Second), sserr.CodeTooLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := ChainValidator{Now: func() time.Time { return tt.now }}
			_, _, err := v.ValidateLegacyToken(token, nil)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			testutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestValidateLegacyToken_NoTimeClaims(t *testing.T) {
	t.Parallel()
	key := fixtures.NewECKey(t)
	token := fixtures.SelfSigned(t, key, jwt.MapClaims{"identityPublicKey": key.B64()})
	v := testValidator()
	claims, signer, err := v.ValidateLegacyToken(token, nil)
	require.NoError(t, err)
	assert.Equal(t, key.B64(), claims.IdentityPublicKey)
	assert.Equal(t, key.DER, signer)
}

// ---------------------------------------------------------------------------
// Self-signed tokens
// ---------------------------------------------------------------------------

func TestValidateSelfSignedToken(t *testing.T) {
	t.Parallel()
	v := testValidator()
	key := fixtures.NewECKey(t)
	other := fixtures.NewECKey(t)

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		signer, err := v.ValidateSelfSignedToken(fixtures.SelfSigned(t, key, jwt.MapClaims{}), nil)
		require.NoError(t, err)
		assert.Equal(t, key.DER, signer)
	})

	t.Run("expected key matches", func(t *testing.T) {
		t.Parallel()
		_, err := v.ValidateSelfSignedToken(fixtures.SelfSigned(t, key, jwt.MapClaims{}), key.DER)
		assert.NoError(t, err)
	})

	t.Run("header key differs from expected", func(t *testing.T) {
		t.Parallel()
		_, err := v.ValidateSelfSignedToken(fixtures.SelfSigned(t, key, jwt.MapClaims{}), other.DER)
		testutil.RequireErrorCode(t, err, sserr.CodeBadSignature)
	})

	t.Run("header lies about signer", func(t *testing.T) {
		t.Parallel()
		token := fixtures.SelfSignedWithX5U(t, key, other.B64(), jwt.MapClaims{})
		_, err := v.ValidateSelfSignedToken(token, nil)
		testutil.RequireErrorCode(t, err, sserr.CodeBadSignature)
	})

	t.Run("missing x5u", func(t *testing.T) {
		t.Parallel()
		tok := jwt.NewWithClaims(jwt.SigningMethodES384, jwt.MapClaims{})
		raw, err := tok.SignedString(key.Private)
		require.NoError(t, err)
		_, err = v.ValidateSelfSignedToken(raw, nil)
		testutil.RequireErrorCode(t, err, sserr.CodeMalformedToken)
	})

	t.Run("x5u not base64", func(t *testing.T) {
		t.Parallel()
		token := fixtures.SelfSignedWithX5U(t, key, "%%%", jwt.MapClaims{})
		_, err := v.ValidateSelfSignedToken(token, nil)
		testutil.RequireErrorCode(t, err, sserr.CodeInvalidPublicKey)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := v.ValidateSelfSignedToken("not-a-token", nil)
		testutil.RequireErrorCode(t, err, sserr.CodeMalformedToken)
	})

	t.Run("RSA key in x5u", func(t *testing.T) {
		t.Parallel()
		rsaKey := fixtures.NewRSAKey(t, "k")
		token := fixtures.SelfSignedWithX5U(t, key, base64Std(rsaKey.DER), jwt.MapClaims{})
		_, err := v.ValidateSelfSignedToken(token, nil)
		testutil.RequireErrorCode(t, err, sserr.CodeInvalidPublicKey)
	})
}

func TestValidateClientData_SizeLimits(t *testing.T) {
	t.Parallel()
	v := testValidator()
	key := fixtures.NewECKey(t)
	large := fixtures.SelfSigned(t, key, jwt.MapClaims{"SkinData": strings.Repeat("A", 30*1024)})
	require.Greater(t, len(large), MaxTokenSize)

	signer, err := v.ValidateClientData(large, key.DER)
	require.NoError(t, err)
	assert.Equal(t, key.DER, signer)

	_, err = v.ValidateSelfSignedToken(large, key.DER)
	testutil.RequireErrorCode(t, err, sserr.CodeMalformedToken, "identity tokens keep the small bound")

	_, err = v.ValidateClientData(strings.Repeat("A", MaxClientDataSize+1), key.DER)
	testutil.RequireErrorCode(t, err, sserr.CodeMalformedToken)
}

// ---------------------------------------------------------------------------
// Chain walk
// ---------------------------------------------------------------------------

func TestValidateChain_TwoLinks(t *testing.T) {
	t.Parallel()
	v := testValidator()
	a := fixtures.NewECKey(t)
	b := fixtures.NewECKey(t)
	client := fixtures.NewECKey(t)

	chain := []string{
		fixtures.SelfSigned(t, a, legacyLink(b)),
		fixtures.SelfSigned(t, b, legacyLink(client)),
	}
	res, err := v.ValidateChain(chain)
	require.NoError(t, err)
	assert.Equal(t, client.DER, res.IdentityKey)
	assert.False(t, res.Authenticated)
}

func TestValidateChain_SignerMismatch(t *testing.T) {
	t.Parallel()
	v := testValidator()
	a := fixtures.NewECKey(t)
	b := fixtures.NewECKey(t)
	intruder := fixtures.NewECKey(t)

	chain := []string{
		fixtures.SelfSigned(t, a, legacyLink(b)),
		fixtures.SelfSigned(t, intruder, legacyLink(intruder)),
	}
	_, err := v.ValidateChain(chain)
	testutil.RequireErrorCode(t, err, sserr.CodeBadSignature)
	e, _ := sserr.AsError(err)
	assert.Equal(t, 1, e.Details["link"])
}

func TestValidateChain_Empty(t *testing.T) {
	t.Parallel()
	v := testValidator()
	_, err := v.ValidateChain(nil)
	testutil.RequireErrorCode(t, err, sserr.CodeEmptyChain)
}

func TestValidateChain_MissingIdentityKey(t *testing.T) {
	t.Parallel()
	v := testValidator()
	a := fixtures.NewECKey(t)
	_, err := v.ValidateChain([]string{fixtures.SelfSigned(t, a, fixtures.Window(testNow))})
	testutil.RequireErrorCode(t, err, sserr.CodeMissingKey)
}

func TestValidateChain_RootAuthentication(t *testing.T) {
	t.Parallel()
	root := fixtures.NewECKey(t)
	identity := fixtures.NewECKey(t)
	client := fixtures.NewECKey(t)

	rootSigned := []string{
		fixtures.SelfSigned(t, identity, legacyLink(root)),
		fixtures.SelfSigned(t, root, legacyLink(client)),
	}
	selfSigned := []string{fixtures.SelfSigned(t, client, legacyLink(client))}

	v := testValidator()
	v.RootKey = root.DER

	res, err := v.ValidateChain(rootSigned)
	require.NoError(t, err)
	assert.True(t, res.Authenticated)

	res, err = v.ValidateChain(selfSigned)
	require.NoError(t, err)
	assert.False(t, res.Authenticated)

	t.Run("flag survives a later failure", func(t *testing.T) {
		expired := fixtures.SelfSigned(t, client, fixtures.Merge(legacyLink(client), jwt.MapClaims{
			"exp": testNow.Add(-time.Hour).Unix(),
		}))
		res, err := v.ValidateChain([]string{rootSigned[0], rootSigned[1], expired})
		testutil.RequireErrorCode(t, err, sserr.CodeTooLate)
		assert.True(t, res.Authenticated)
	})

	t.Run("no root key configured", func(t *testing.T) {
		unrooted := testValidator()
		res, err := unrooted.ValidateChain(rootSigned)
		require.NoError(t, err)
		assert.False(t, res.Authenticated)
	})
}

// ---------------------------------------------------------------------------
// Federated tokens
// ---------------------------------------------------------------------------

func TestValidateOpenIDToken(t *testing.T) {
	t.Parallel()
	v := testValidator()
	signing := fixtures.NewRSAKey(t, "kid-1")
	other := fixtures.NewRSAKey(t, "kid-2")
	client := fixtures.NewECKey(t)

	valid := fixtures.OpenIDClaims(testNow, client)

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		claims, err := v.ValidateOpenIDToken(fixtures.OpenIDToken(t, signing, valid), signing.DER, fixtures.Issuer)
		require.NoError(t, err)
		assert.Equal(t, fixtures.XUID, claims.XUID)
		assert.Equal(t, fixtures.Gamertag, claims.Gamertag)
		assert.Equal(t, client.B64(), claims.ClientPublicKey)
	})

	tests := []struct {
		name   string
		claims jwt.MapClaims
		key    []byte
		code   sserr.Code
	}{
		{"wrong key", valid, other.DER, sserr.CodeBadSignature},
		{"EC key", valid, client.DER, sserr.CodeInvalidPublicKey},
		{"wrong issuer", fixtures.Merge(valid, jwt.MapClaims{"iss": "https://evil"}), signing.DER, sserr.CodeInvalidIssuer},
		{"no issuer", fixtures.Merge(valid, jwt.MapClaims{"iss": ""}), signing.DER, sserr.CodeInvalidIssuer},
		{"wrong audience", fixtures.Merge(valid, jwt.MapClaims{"aud": "api://other"}), signing.DER, sserr.CodeInvalidAudience},
		{"two audiences", fixtures.Merge(valid, jwt.MapClaims{"aud": []string{fixtures.Audience, "x"}}), signing.DER, sserr.CodeInvalidAudience},
		{"expired", fixtures.Merge(valid, jwt.MapClaims{"exp": testNow.Add(-2 * time.Minute).Unix()}), signing.DER, sserr.CodeTooLate},
		{"not yet valid", fixtures.Merge(valid, jwt.MapClaims{"nbf": testNow.Add(2 * time.Minute).Unix()}), signing.DER, sserr.CodeTooEarly},
		{"no cpk", fixtures.Merge(valid, jwt.MapClaims{"cpk": ""}), signing.DER, sserr.CodeMalformedToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.ValidateOpenIDToken(fixtures.OpenIDToken(t, signing, tt.claims), tt.key, fixtures.Issuer)
			testutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func base64Std(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
