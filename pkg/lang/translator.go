package lang

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var builtin = map[language.Tag]map[string]string{
	language.English: {
		KeyBadSignature:     "Invalid session. Reason: invalid signature",
		KeyTooEarly:         "Invalid session. Reason: token not yet valid, check your system clock",
		KeyTooLate:          "Invalid session. Reason: token expired, check your system clock",
		KeyMissingKey:       "Invalid session. Reason: missing identity public key",
		KeyInvalidSession:   "Invalid session",
		KeyNotAuthenticated: "You need to be signed in to Xbox Live to join this server",
		KeyInvalidName:      "Invalid name",
		KeyServerFull:       "Server is full",
		KeyWhitelisted:      "Server is whitelisted",
		KeyBan:              "You are banned. Reason: %s",
		KeyBanNoReason:      "You are banned",
		KeyBanIP:            "IP banned",
	},
	language.German: {
		KeyBadSignature:     "Ungültige Sitzung. Grund: ungültige Signatur",
		KeyTooEarly:         "Ungültige Sitzung. Grund: Token noch nicht gültig, prüfe deine Systemzeit",
		KeyTooLate:          "Ungültige Sitzung. Grund: Token abgelaufen, prüfe deine Systemzeit",
		KeyMissingKey:       "Ungültige Sitzung. Grund: öffentlicher Identitätsschlüssel fehlt",
		KeyInvalidSession:   "Ungültige Sitzung",
		KeyNotAuthenticated: "Du musst bei Xbox Live angemeldet sein, um diesem Server beizutreten",
		KeyInvalidName:      "Ungültiger Name",
		KeyServerFull:       "Der Server ist voll",
		KeyWhitelisted:      "Der Server hat eine Whitelist",
		KeyBan:              "Du bist gebannt. Grund: %s",
		KeyBanNoReason:      "Du bist gebannt",
		KeyBanIP:            "IP gebannt",
	},
}

// Translator renders [Translatable] messages using an x/text catalog.
// It is safe for concurrent use.
type Translator struct {
	supported []language.Tag
	matcher   language.Matcher
	catalog   *catalog.Builder
	known     map[string]struct{}
}

// NewTranslator returns a translator loaded with the built-in English and
// German messages. English is the fallback.
func NewTranslator() *Translator {
	supported := []language.Tag{language.English, language.German}
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	known := make(map[string]struct{})
	for _, tag := range supported {
		for key, msg := range builtin[tag] {
			// Keys and messages are static; SetString only fails on malformed
			// message syntax.
			if err := b.SetString(tag, key, msg); err != nil {
				panic("lang: invalid built-in message " + key + ": " + err.Error())
			}
			known[key] = struct{}{}
		}
	}
	return &Translator{
		supported: supported,
		matcher:   language.NewMatcher(supported),
		catalog:   b,
		known:     known,
	}
}

// Match returns the supported language closest to a client locale such as
// "en_US" or "de-DE". Unparseable locales yield English.
func (t *Translator) Match(locale string) language.Tag {
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return t.supported[0]
	}
	_, idx, _ := t.matcher.Match(tag)
	return t.supported[idx]
}

// Translate renders msg for locale. Unknown keys render as the key itself
// followed by any parameters.
func (t *Translator) Translate(locale string, msg *Translatable) string {
	if msg == nil {
		return ""
	}
	return t.render(t.Match(locale), msg)
}

func (t *Translator) render(tag language.Tag, msg *Translatable) string {
	args := make([]any, len(msg.Params))
	for i, p := range msg.Params {
		if nested, ok := p.(*Translatable); ok {
			args[i] = t.render(tag, nested)
			continue
		}
		args[i] = p
	}
	if _, ok := t.known[msg.Key]; !ok {
		return (&Translatable{Key: msg.Key, Params: args}).String()
	}
	return message.NewPrinter(tag, message.Catalog(t.catalog)).Sprintf(msg.Key, args...)
}
