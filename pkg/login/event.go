package login

import (
	"sort"

	"github.com/StricklySoft/bedrock-auth/pkg/lang"
	"github.com/StricklySoft/bedrock-auth/pkg/models"
)

// KickFlag is a reason a login may be refused before verification. Lower
// values take priority when several flags are set.
type KickFlag int

const (
	KickFlagPlugin KickFlag = iota
	KickFlagServerFull
	KickFlagWhitelisted
	KickFlagBanned
)

func (f KickFlag) String() string {
	switch f {
	case KickFlagPlugin:
		return "plugin"
	case KickFlagServerFull:
		return "server_full"
	case KickFlagWhitelisted:
		return "whitelisted"
	case KickFlagBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// Kick is the reason attached to a kick flag. Reason goes to the server
// log; Message is shown to the player.
type Kick struct {
	Reason  string
	Message *lang.Translatable
}

// PreLoginEvent is raised after the login payload has been classified and
// before any key lookup or verification. Hooks may set or clear kick flags
// and change whether authentication is required.
type PreLoginEvent struct {
	Player *models.PlayerInfo
	IP     string

	authRequired bool
	kicks        map[KickFlag]Kick
}

// PreLoginHook observes and may modify a [PreLoginEvent]. Hooks run on the
// main loop in registration order.
type PreLoginHook func(ev *PreLoginEvent)

func newPreLoginEvent(player *models.PlayerInfo, ip string, authRequired bool) *PreLoginEvent {
	return &PreLoginEvent{
		Player:       player,
		IP:           ip,
		authRequired: authRequired,
		kicks:        make(map[KickFlag]Kick),
	}
}

// AuthRequired reports whether the player must be authenticated.
func (e *PreLoginEvent) AuthRequired() bool { return e.authRequired }

// SetAuthRequired overrides the server-wide default for this player.
func (e *PreLoginEvent) SetAuthRequired(v bool) { e.authRequired = v }

// SetKickFlag sets flag, replacing any reason it already had. An empty
// reason uses the message's log form.
func (e *PreLoginEvent) SetKickFlag(flag KickFlag, reason string, msg *lang.Translatable) {
	if reason == "" {
		reason = msg.String()
	}
	e.kicks[flag] = Kick{Reason: reason, Message: msg}
}

// ClearKickFlag removes flag.
func (e *PreLoginEvent) ClearKickFlag(flag KickFlag) {
	delete(e.kicks, flag)
}

// ClearAllKickFlags lets the player in regardless of earlier checks.
func (e *PreLoginEvent) ClearAllKickFlags() {
	clear(e.kicks)
}

// Cancel refuses the login with a plugin kick.
func (e *PreLoginEvent) Cancel(reason string, msg *lang.Translatable) {
	e.SetKickFlag(KickFlagPlugin, reason, msg)
}

// IsKickFlagSet reports whether flag is set.
func (e *PreLoginEvent) IsKickFlagSet(flag KickFlag) bool {
	_, ok := e.kicks[flag]
	return ok
}

// KickFlags returns the set flags in priority order.
func (e *PreLoginEvent) KickFlags() []KickFlag {
	flags := make([]KickFlag, 0, len(e.kicks))
	for f := range e.kicks {
		flags = append(flags, f)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })
	return flags
}

// Allowed reports whether no kick flag is set.
func (e *PreLoginEvent) Allowed() bool { return len(e.kicks) == 0 }

// FinalKick returns the highest-priority kick, if any.
func (e *PreLoginEvent) FinalKick() (KickFlag, Kick, bool) {
	flags := e.KickFlags()
	if len(flags) == 0 {
		return 0, Kick{}, false
	}
	return flags[0], e.kicks[flags[0]], true
}
