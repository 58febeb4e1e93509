package login

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/StricklySoft/bedrock-auth/pkg/lang"
	"github.com/StricklySoft/bedrock-auth/pkg/models"
)

func TestPreLoginEvent_KickFlags(t *testing.T) {
	t.Parallel()
	ev := newPreLoginEvent(&models.PlayerInfo{Username: "Steve"}, "192.0.2.1", true)
	assert.True(t, ev.Allowed())
	_, _, kicked := ev.FinalKick()
	assert.False(t, kicked)

	ev.SetKickFlag(KickFlagBanned, "", lang.BanNoReason())
	ev.SetKickFlag(KickFlagServerFull, "full", lang.ServerFull())
	assert.False(t, ev.Allowed())
	assert.True(t, ev.IsKickFlagSet(KickFlagBanned))
	assert.Equal(t, []KickFlag{KickFlagServerFull, KickFlagBanned}, ev.KickFlags())

	flag, kick, kicked := ev.FinalKick()
	assert.True(t, kicked)
	assert.Equal(t, KickFlagServerFull, flag)
	assert.Equal(t, "full", kick.Reason)
	assert.Equal(t, lang.ServerFull(), kick.Message)

	ev.ClearKickFlag(KickFlagServerFull)
	flag, kick, _ = ev.FinalKick()
	assert.Equal(t, KickFlagBanned, flag)
	assert.Equal(t, lang.KeyBanNoReason, kick.Reason, "empty reason falls back to the message")

	ev.Cancel("plugin", nil)
	flag, _, _ = ev.FinalKick()
	assert.Equal(t, KickFlagPlugin, flag)

	ev.ClearAllKickFlags()
	assert.True(t, ev.Allowed())
}

func TestPreLoginEvent_AuthRequired(t *testing.T) {
	t.Parallel()
	ev := newPreLoginEvent(&models.PlayerInfo{}, "", true)
	assert.True(t, ev.AuthRequired())
	ev.SetAuthRequired(false)
	assert.False(t, ev.AuthRequired())
}

func TestKickFlag_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "plugin", KickFlagPlugin.String())
	assert.Equal(t, "server_full", KickFlagServerFull.String())
	assert.Equal(t, "whitelisted", KickFlagWhitelisted.String())
	assert.Equal(t, "banned", KickFlagBanned.String())
	assert.Equal(t, "unknown", KickFlag(42).String())
}
