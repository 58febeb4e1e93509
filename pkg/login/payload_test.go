package login

import (
	"encoding/json"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/bedrock-auth/internal/testutil"
	"github.com/StricklySoft/bedrock-auth/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
	"github.com/StricklySoft/bedrock-auth/pkg/models"
)

func certificate(t *testing.T, links ...string) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{"chain": links})
	require.NoError(t, err)
	return string(data)
}

func TestClassify_Federated(t *testing.T) {
	t.Parallel()
	signing := fixtures.NewRSAKey(t, "kid-7")
	token := fixtures.OpenIDToken(t, signing, fixtures.OpenIDClaims(testNow, fixtures.NewECKey(t)))

	req, err := Classify(&AuthenticationInfo{AuthenticationType: AuthTypeFull, Token: token}, 3)
	require.NoError(t, err)
	fed, ok := req.(*FederatedRequest)
	require.True(t, ok, "got %T", req)

	assert.Equal(t, "kid-7", fed.KeyID)
	assert.Equal(t, token, fed.Token)
	assert.Equal(t, fixtures.Gamertag, fed.Player.Username)
	assert.Equal(t, fixtures.XUID, fed.Player.XUID)
	assert.Equal(t, models.UUIDFromXUID(fixtures.XUID), fed.Player.UUID)
}

func TestClassify_FederatedMissingClaims(t *testing.T) {
	t.Parallel()
	signing := fixtures.NewRSAKey(t, "kid-7")

	noName := fixtures.OpenIDToken(t, signing, fixtures.Merge(fixtures.Window(testNow), jwt.MapClaims{"xid": "1"}))
	_, err := Classify(&AuthenticationInfo{AuthenticationType: AuthTypeFull, Token: noName}, 3)
	testutil.RequireErrorCode(t, err, sserr.CodeMalformedToken)

	noKid := &fixtures.RSAKey{KID: "", Private: signing.Private, DER: signing.DER}
	token := fixtures.OpenIDToken(t, noKid, fixtures.OpenIDClaims(testNow, fixtures.NewECKey(t)))
	_, err = Classify(&AuthenticationInfo{AuthenticationType: AuthTypeFull, Token: token}, 3)
	testutil.RequireErrorCode(t, err, sserr.CodeMalformedToken)
}

func TestClassify_Legacy(t *testing.T) {
	t.Parallel()
	key := fixtures.NewECKey(t)
	identity := jwt.MapClaims{
		"identityPublicKey": key.B64(),
		"extraData":         map[string]any{"displayName": "Alex", "identity": fixtures.Identity},
	}
	first := fixtures.SelfSigned(t, key, jwt.MapClaims{"identityPublicKey": key.B64()})
	last := fixtures.SelfSigned(t, key, identity)

	req, err := Classify(&AuthenticationInfo{AuthenticationType: AuthTypeSelfSigned, Certificate: certificate(t, first, last)}, 3)
	require.NoError(t, err)
	leg, ok := req.(*LegacyRequest)
	require.True(t, ok, "got %T", req)
	assert.Equal(t, []string{first, last}, leg.Chain)
	assert.Equal(t, "Alex", leg.Player.Username)
	assert.Equal(t, fixtures.Identity, leg.Player.UUID.String())
	assert.Empty(t, leg.Player.XUID)
}

func TestClassify_LegacyErrors(t *testing.T) {
	t.Parallel()
	key := fixtures.NewECKey(t)
	good := fixtures.SelfSigned(t, key, jwt.MapClaims{
		"extraData": map[string]any{"displayName": "Alex", "identity": fixtures.Identity},
	})
	noExtra := fixtures.SelfSigned(t, key, jwt.MapClaims{"identityPublicKey": key.B64()})
	badUUID := fixtures.SelfSigned(t, key, jwt.MapClaims{
		"extraData": map[string]any{"displayName": "Alex", "identity": "not-a-uuid"},
	})

	tests := []struct {
		name string
		cert string
		max  int
		code sserr.Code
	}{
		{"not json", "{", 3, sserr.CodeUnexpectedJSON},
		{"string", `"chain"`, 3, sserr.CodeUnexpectedJSON},
		{"chain wrong type", `{"chain":"x"}`, 3, sserr.CodeUnexpectedJSON},
		{"no links", `{"chain":[]}`, 3, sserr.CodeProtocol},
		{"too many links", certificate(t, good, good), 1, sserr.CodeProtocol},
		{"malformed link", certificate(t, "x.y"), 3, sserr.CodeMalformedToken},
		{"no extraData", certificate(t, noExtra), 3, sserr.CodeMalformedToken},
		{"bad identity uuid", certificate(t, badUUID), 3, sserr.CodeMalformedToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Classify(&AuthenticationInfo{AuthenticationType: AuthTypeSelfSigned, Certificate: tc.cert}, tc.max)
			testutil.RequireErrorCode(t, err, tc.code)
		})
	}
}

func TestClassify_Unsupported(t *testing.T) {
	t.Parallel()
	req, err := Classify(&AuthenticationInfo{AuthenticationType: AuthTypeGuest}, 3)
	require.NoError(t, err)
	assert.Equal(t, FlowUnsupported, req.Flow())
	assert.Equal(t, AuthTypeGuest, req.(*UnsupportedRequest).Type)
}

func TestParseAuthenticationInfo(t *testing.T) {
	t.Parallel()
	info, err := ParseAuthenticationInfo([]byte(`{"AuthenticationType":2,"Certificate":"c","Token":""}`))
	require.NoError(t, err)
	assert.Equal(t, AuthTypeSelfSigned, info.AuthenticationType)
	assert.Equal(t, "c", info.Certificate)

	for _, raw := range []string{``, `null`, `"x"`, `{}`, `{"AuthenticationType":"full"}`,
		`{"AuthenticationType":null,"Token":"x"}`, `{"AuthenticationType": null }`, `{"AuthenticationType":1.5}`,
	} {
		_, err := ParseAuthenticationInfo([]byte(raw))
		testutil.AssertErrorCode(t, err, sserr.CodeUnexpectedJSON, "input %q", raw)
	}
}

func TestParseClientData(t *testing.T) {
	t.Parallel()
	claims := fixtures.Merge(fixtures.ClientData(testNow), jwt.MapClaims{
		"ClientRandomId": int64(-6456427438572439552),
		"PlayFabId":      "abc",
	})
	token := fixtures.SelfSigned(t, fixtures.NewECKey(t), claims)

	cd, err := ParseClientData(token)
	require.NoError(t, err)
	assert.Equal(t, "en_US", cd.LanguageCode)
	assert.Equal(t, 7, cd.DeviceOS)
	assert.Equal(t, "Standard_Custom", cd.SkinID)
	assert.Equal(t, int64(-6456427438572439552), cd.ClientRandomID, "large IDs keep full precision")
	assert.Contains(t, cd.Raw, "PlayFabId", "unmapped claims are kept")

	_, err = ParseClientData("x")
	testutil.RequireErrorCode(t, err, sserr.CodeMalformedToken)
}

func TestAuthenticationType_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "full", AuthTypeFull.String())
	assert.Equal(t, "guest", AuthTypeGuest.String())
	assert.Equal(t, "self_signed", AuthTypeSelfSigned.String())
	assert.Equal(t, "unknown(9)", AuthenticationType(9).String())
}
