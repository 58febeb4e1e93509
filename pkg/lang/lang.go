// Package lang holds the localizable disconnect messages shown to players
// and a [Translator] that renders them for a client locale.
package lang

import (
	"fmt"
	"strings"
)

// Message keys.
const (
	KeyBadSignature     = "disconnect.invalidSession.badSignature"
	KeyTooEarly         = "disconnect.invalidSession.tooEarly"
	KeyTooLate          = "disconnect.invalidSession.tooLate"
	KeyMissingKey       = "disconnect.invalidSession.missingKey"
	KeyInvalidSession   = "disconnect.invalidSession"
	KeyNotAuthenticated = "disconnectionScreen.notAuthenticated"
	KeyInvalidName      = "disconnectionScreen.invalidName"
	KeyServerFull       = "disconnectionScreen.serverFull"
	KeyWhitelisted      = "disconnect.whitelisted"
	KeyBan              = "disconnect.ban"
	KeyBanNoReason      = "disconnect.ban.noReason"
	KeyBanIP            = "disconnect.ban.ip"
)

// Translatable is a message key plus its parameters. A parameter may itself
// be a Translatable; it is rendered in the same locale.
type Translatable struct {
	Key    string
	Params []any
}

// New returns a translatable for key.
func New(key string, params ...any) *Translatable {
	return &Translatable{Key: key, Params: params}
}

// String renders the message without a catalog, for logs.
func (t *Translatable) String() string {
	if t == nil {
		return ""
	}
	if len(t.Params) == 0 {
		return t.Key
	}
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = fmt.Sprint(p)
	}
	return t.Key + "[" + strings.Join(parts, ", ") + "]"
}

// Constructors for the messages the login pipeline emits.

func BadSignature() *Translatable     { return New(KeyBadSignature) }
func TooEarly() *Translatable         { return New(KeyTooEarly) }
func TooLate() *Translatable          { return New(KeyTooLate) }
func MissingKey() *Translatable       { return New(KeyMissingKey) }
func InvalidSession() *Translatable   { return New(KeyInvalidSession) }
func NotAuthenticated() *Translatable { return New(KeyNotAuthenticated) }
func InvalidName() *Translatable      { return New(KeyInvalidName) }
func ServerFull() *Translatable       { return New(KeyServerFull) }
func Whitelisted() *Translatable      { return New(KeyWhitelisted) }
func BanNoReason() *Translatable      { return New(KeyBanNoReason) }
func BanIP() *Translatable            { return New(KeyBanIP) }

// Ban takes a reason string or a nested *Translatable.
func Ban(reason any) *Translatable { return New(KeyBan, reason) }
