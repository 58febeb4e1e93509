package login

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/StricklySoft/bedrock-auth/pkg/auth"
	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
	"github.com/StricklySoft/bedrock-auth/pkg/models"
)

// AuthenticationType is the declared login flow.
type AuthenticationType int

const (
	AuthTypeFull       AuthenticationType = 0
	AuthTypeGuest      AuthenticationType = 1
	AuthTypeSelfSigned AuthenticationType = 2
)

func (t AuthenticationType) String() string {
	switch t {
	case AuthTypeFull:
		return "full"
	case AuthTypeGuest:
		return "guest"
	case AuthTypeSelfSigned:
		return "self_signed"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// AuthenticationInfo is the JSON document carried by the login packet.
// Token is used by the federated flow, Certificate by the legacy flow.
type AuthenticationInfo struct {
	AuthenticationType AuthenticationType `json:"AuthenticationType"`
	Certificate        string             `json:"Certificate"`
	Token              string             `json:"Token"`
}

// Flow names a login flow in logs and metrics.
type Flow string

const (
	FlowFederated   Flow = "federated"
	FlowLegacy      Flow = "legacy"
	FlowUnsupported Flow = "unsupported"
)

// Request is a classified login payload: a [*FederatedRequest],
// [*LegacyRequest] or [*UnsupportedRequest].
type Request interface {
	Flow() Flow
}

// FederatedRequest is a login carrying an identity-provider token.
type FederatedRequest struct {
	Token  string
	KeyID  string
	Player *models.PlayerInfo
}

// LegacyRequest is a login carrying a self-signed certificate chain.
type LegacyRequest struct {
	Chain  []string
	Player *models.PlayerInfo
}

// UnsupportedRequest is any other declared authentication type.
type UnsupportedRequest struct {
	Type AuthenticationType
}

func (*FederatedRequest) Flow() Flow   { return FlowFederated }
func (*LegacyRequest) Flow() Flow      { return FlowLegacy }
func (*UnsupportedRequest) Flow() Flow { return FlowUnsupported }

// ParseAuthenticationInfo decodes the authentication info JSON. The
// document must be an object declaring AuthenticationType.
func ParseAuthenticationInfo(data []byte) (*AuthenticationInfo, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnexpectedJSON, "login: auth info is not a JSON object")
	}
	if fields == nil {
		return nil, sserr.New(sserr.CodeUnexpectedJSON, "login: auth info is null, expected object")
	}
	authType, ok := fields["AuthenticationType"]
	if !ok {
		return nil, sserr.New(sserr.CodeUnexpectedJSON, "login: auth info is missing AuthenticationType")
	}
	// A null type would otherwise decode to the zero value, AuthTypeFull.
	if string(bytes.TrimSpace(authType)) == "null" {
		return nil, sserr.New(sserr.CodeUnexpectedJSON, "login: AuthenticationType is null, expected integer")
	}
	info := &AuthenticationInfo{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnexpectedJSON, "login: cannot map auth info")
	}
	return info, nil
}

// Classify extracts the unverified identity from info. Nothing is
// verified; the returned player is only trusted once verification
// succeeds.
func Classify(info *AuthenticationInfo, maxChainLinks int) (Request, error) {
	switch info.AuthenticationType {
	case AuthTypeFull:
		return classifyFederated(info.Token)
	case AuthTypeSelfSigned:
		return classifyLegacy(info.Certificate, maxChainLinks)
	default:
		return &UnsupportedRequest{Type: info.AuthenticationType}, nil
	}
}

func classifyFederated(token string) (*FederatedRequest, error) {
	claims := &auth.OpenIDClaims{}
	tok, err := auth.ParseToken(token, claims)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeMalformedToken, "login: error parsing authentication token")
	}
	kid := tok.HeaderString("kid")
	if kid == "" {
		return nil, sserr.New(sserr.CodeMalformedToken, "login: authentication token header has no kid")
	}
	if claims.XUID == "" || claims.Gamertag == "" {
		return nil, sserr.New(sserr.CodeMalformedToken, "login: authentication token is missing xid or xname")
	}
	return &FederatedRequest{
		Token: token,
		KeyID: kid,
		Player: &models.PlayerInfo{
			Username: claims.Gamertag,
			UUID:     models.UUIDFromXUID(claims.XUID),
			XUID:     claims.XUID,
		},
	}, nil
}

type legacyChain struct {
	Chain []string `json:"chain"`
}

func classifyLegacy(certificate string, maxChainLinks int) (*LegacyRequest, error) {
	trimmed := bytes.TrimSpace([]byte(certificate))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, sserr.New(sserr.CodeUnexpectedJSON, "login: self-signed certificate chain is not a JSON object")
	}
	var chain legacyChain
	if err := json.Unmarshal(trimmed, &chain); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnexpectedJSON, "login: error parsing self-signed certificate chain")
	}
	if n := len(chain.Chain); n == 0 || n > maxChainLinks {
		return nil, sserr.Protocolf(
			"login: expected 1 to %d certificates in self-signed certificate chain, got %d", maxChainLinks, n)
	}

	claims := &auth.LegacyClaims{}
	if _, err := auth.ParseToken(chain.Chain[len(chain.Chain)-1], claims); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeMalformedToken, "login: error parsing self-signed certificate")
	}
	if claims.ExtraData == nil {
		return nil, sserr.New(sserr.CodeMalformedToken, `login: expected "extraData" to be present in self-signed certificate`)
	}
	id, err := uuid.Parse(claims.ExtraData.Identity)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeMalformedToken,
			"login: invalid UUID string in self-signed certificate: %q", claims.ExtraData.Identity)
	}
	return &LegacyRequest{
		Chain: chain.Chain,
		Player: &models.PlayerInfo{
			Username: claims.ExtraData.DisplayName,
			UUID:     id,
		},
	}, nil
}

// ParseClientData decodes the client data token's claims without
// verifying it.
func ParseClientData(token string) (models.ClientData, error) {
	var cd models.ClientData
	// Numbers stay json.Number so ClientRandomId survives the round trip.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser(jwt.WithJSONNumber()).ParseUnverified(token, claims); err != nil {
		return cd, sserr.Wrap(err, sserr.CodeMalformedToken, "login: error parsing client data")
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return cd, sserr.Wrap(err, sserr.CodeUnexpectedJSON, "login: cannot map client data")
	}
	if err := json.Unmarshal(data, &cd); err != nil {
		return cd, sserr.Wrap(err, sserr.CodeUnexpectedJSON, "login: cannot map client data")
	}
	cd.Raw = claims
	return cd, nil
}
