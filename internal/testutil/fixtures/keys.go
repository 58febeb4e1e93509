// Package fixtures builds signing keys, login tokens and a fake identity
// provider for tests.
package fixtures

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// Standard identity values used across login tests.
const (
	Issuer   = "https://authorization.test"
	Audience = "api://auth-minecraft-services/multiplayer"
	XUID     = "2535428765332540"
	Gamertag = "Steve"
	Identity = "0b7c35a0-4f5e-3c8d-9a1b-2c3d4e5f6a7b"
)

// ECKey is a P-384 key as used by self-signed tokens.
type ECKey struct {
	Private *ecdsa.PrivateKey
	DER     []byte
}

// B64 returns the standard base64 DER encoding carried in x5u headers and
// identityPublicKey / cpk claims.
func (k *ECKey) B64() string {
	return base64.StdEncoding.EncodeToString(k.DER)
}

// NewECKey generates a P-384 key pair.
func NewECKey(t testing.TB) *ECKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err, "failed to generate EC key")
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err, "failed to marshal EC public key")
	return &ECKey{Private: priv, DER: der}
}

// RSAKey is an identity provider signing key.
type RSAKey struct {
	KID     string
	Private *rsa.PrivateKey
	DER     []byte
}

// NewRSAKey generates a 2048-bit RSA key pair with the given key ID.
func NewRSAKey(t testing.TB, kid string) *RSAKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err, "failed to marshal RSA public key")
	return &RSAKey{KID: kid, Private: priv, DER: der}
}

// JWK returns the key as a JWKS entry with use=sig.
func (k *RSAKey) JWK() map[string]any {
	return map[string]any{
		"kty": "RSA",
		"kid": k.KID,
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(k.Private.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.Private.E)).Bytes()),
	}
}

// Window returns nbf/exp claims valid around now.
func Window(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"nbf": now.Add(-time.Minute).Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

// Merge returns a new claim set with the entries of every argument, later
// arguments winning.
func Merge(sets ...jwt.MapClaims) jwt.MapClaims {
	out := jwt.MapClaims{}
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

// SelfSigned signs claims with signer using ES384 and embeds the signer's
// public key in the x5u header.
func SelfSigned(t testing.TB, signer *ECKey, claims jwt.MapClaims) string {
	t.Helper()
	return SelfSignedWithX5U(t, signer, signer.B64(), claims)
}

// SelfSignedWithX5U is like [SelfSigned] but lets the caller lie about the
// embedded key.
func SelfSignedWithX5U(t testing.TB, signer *ECKey, x5u string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES384, claims)
	token.Header["x5u"] = x5u
	s, err := token.SignedString(signer.Private)
	require.NoError(t, err, "failed to sign self-signed token")
	return s
}

// OpenIDToken signs an RS256 token with key, setting kid in the header.
func OpenIDToken(t testing.TB, key *RSAKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.KID
	s, err := token.SignedString(key.Private)
	require.NoError(t, err, "failed to sign OpenID token")
	return s
}

// OpenIDClaims returns a valid federated claim set binding clientKey via cpk.
func OpenIDClaims(now time.Time, clientKey *ECKey) jwt.MapClaims {
	return Merge(Window(now), jwt.MapClaims{
		"iss":   Issuer,
		"aud":   Audience,
		"xid":   XUID,
		"xname": Gamertag,
		"cpk":   clientKey.B64(),
	})
}

// ClientData returns a client data claim set.
func ClientData(now time.Time) jwt.MapClaims {
	return Merge(Window(now), jwt.MapClaims{
		"LanguageCode":     "en_US",
		"DeviceOS":         7,
		"DeviceModel":      "Test Device",
		"GameVersion":      "1.21.100",
		"SkinId":           "Standard_Custom",
		"ServerAddress":    "127.0.0.1:19132",
		"ThirdPartyName":   Gamertag,
		"ClientRandomId":   12345,
		"CurrentInputMode": 1,
	})
}
