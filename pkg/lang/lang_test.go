package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestTranslator_Match(t *testing.T) {
	t.Parallel()
	tr := NewTranslator()
	tests := []struct {
		locale string
		want   language.Tag
	}{
		{"en_US", language.English},
		{"en-GB", language.English},
		{"de_DE", language.German},
		{"de-AT", language.German},
		{"fr_FR", language.English},
		{"", language.English},
		{"!!", language.English},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tr.Match(tt.locale))
		})
	}
}

func TestTranslator_Translate(t *testing.T) {
	t.Parallel()
	tr := NewTranslator()

	assert.Equal(t, "Server is full", tr.Translate("en_US", ServerFull()))
	assert.Equal(t, "Der Server ist voll", tr.Translate("de_DE", ServerFull()))
	assert.Equal(t, "You are banned. Reason: griefing", tr.Translate("en_US", Ban("griefing")))
	assert.Equal(t, "Du bist gebannt. Grund: IP gebannt", tr.Translate("de_DE", Ban(BanIP())))
	assert.Empty(t, tr.Translate("en_US", nil))
}

func TestTranslator_UnknownKey(t *testing.T) {
	t.Parallel()
	tr := NewTranslator()
	assert.Equal(t, "custom.kick[Steve]", tr.Translate("en_US", New("custom.kick", "Steve")))
}

func TestTranslatable_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, KeyTooLate, TooLate().String())
	assert.Equal(t, "disconnect.ban[disconnect.ban.ip]", Ban(BanIP()).String())
	var nilMsg *Translatable
	assert.Empty(t, nilMsg.String())
}

func TestBuiltinCatalogsHaveSameKeys(t *testing.T) {
	t.Parallel()
	en := builtin[language.English]
	de := builtin[language.German]
	assert.Len(t, de, len(en))
	for key := range en {
		assert.Contains(t, de, key)
	}
}
