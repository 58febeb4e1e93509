// Package models defines the identity data extracted from a login.
//
// A [PlayerInfo] is built synchronously from the unverified login payload
// so that policy checks (name validity, bans, whitelist) can run before any
// cryptographic verification. Nothing in it is trustworthy until the
// verification outcome says so.
package models

import (
	"crypto/md5"
	"strings"

	"github.com/google/uuid"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

// MaxUsernameLength is the longest accepted username.
const MaxUsernameLength = 16

// reservedUsernames cannot be taken by players.
var reservedUsernames = map[string]struct{}{
	"rcon":    {},
	"console": {},
}

// ClientData is the claim set of the client data token. Only the fields the
// server uses are mapped; everything else is kept in Raw.
type ClientData struct {
	LanguageCode     string `json:"LanguageCode"`
	DeviceOS         int    `json:"DeviceOS"`
	DeviceModel      string `json:"DeviceModel"`
	DeviceID         string `json:"DeviceId"`
	GameVersion      string `json:"GameVersion"`
	SkinID           string `json:"SkinId"`
	ServerAddress    string `json:"ServerAddress"`
	ThirdPartyName   string `json:"ThirdPartyName"`
	ClientRandomID   int64  `json:"ClientRandomId"`
	CurrentInputMode int    `json:"CurrentInputMode"`

	Raw map[string]any `json:"-"`
}

// PlayerInfo identifies the player attempting to log in.
type PlayerInfo struct {
	Username string
	UUID     uuid.UUID
	// XUID is set for federated logins only.
	XUID       string
	Locale     string
	ClientData ClientData
}

// HasXUID reports whether the login came through the federated flow.
func (p *PlayerInfo) HasXUID() bool {
	return p.XUID != ""
}

// Validate checks the username rules.
func (p *PlayerInfo) Validate() error {
	if !IsValidUsername(p.Username) {
		return sserr.Newf(sserr.CodeInvalidName, "models: invalid username %q", p.Username)
	}
	return nil
}

// IsValidUsername reports whether name is 1 to 16 characters of ASCII
// letters, digits, underscore or space and is not reserved.
func IsValidUsername(name string) bool {
	if name == "" || len(name) > MaxUsernameLength {
		return false
	}
	if _, reserved := reservedUsernames[strings.ToLower(name)]; reserved {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == ' ':
		default:
			return false
		}
	}
	return true
}

// UUIDFromXUID derives the offline-compatible UUID of a federated player:
// the MD5 of "pocket-auth-1-xuid:"+xuid with version 3 and RFC 4122 variant
// bits applied.
func UUIDFromXUID(xuid string) uuid.UUID {
	hash := md5.Sum([]byte("pocket-auth-1-xuid:" + xuid))
	hash[6] = (hash[6] & 0x0f) | 0x30
	hash[8] = (hash[8] & 0x3f) | 0x80
	return uuid.UUID(hash)
}
