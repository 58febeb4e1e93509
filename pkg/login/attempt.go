package login

import (
	"log/slog"
	"time"

	"github.com/StricklySoft/bedrock-auth/pkg/auth"
	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
	"github.com/StricklySoft/bedrock-auth/pkg/lang"
	"github.com/StricklySoft/bedrock-auth/pkg/models"
	"github.com/StricklySoft/bedrock-auth/pkg/policy"
	"github.com/StricklySoft/bedrock-auth/pkg/scheduler"
)

// Attempt is one login attempt. It is owned by the main loop.
//
// An attempt moves through three phases:
//
//  1. Pre-login: username, client data, capacity, whitelist, bans and
//     hooks, all synchronous on the main loop.
//  2. Verification: the identity is checked on the worker pool, either
//     against the identity provider's keys (federated) or against the
//     configured root key (legacy). A timeout abandons this phase.
//  3. Completion: exactly one of Continue or Disconnect is called on the
//     session, and one login observation is recorded.
//
// Any input arriving after completion is ignored.
type Attempt struct {
	h       *Handler
	session Session
	logger  *slog.Logger
	started time.Time

	flow          Flow
	state         State
	player        *models.PlayerInfo
	cancelTimeout func() bool
	result        string
	err           error
}

// newAttempt starts an idle attempt for s, logging through the session's
// logger when it has one.
func (h *Handler) newAttempt(s Session) *Attempt {
	logger := s.Logger()
	if logger == nil {
		logger = h.logger
	}
	return &Attempt{
		h:       h,
		session: s,
		logger:  logger.With("session", s.ID()),
		started: h.now(),
		state:   StateIdle,
	}
}

// State returns the attempt's current state.
func (a *Attempt) State() State { return a.state }

// Flow returns the classified flow, or "" before classification.
func (a *Attempt) Flow() Flow { return a.flow }

// Player returns the unverified identity, or nil before pre-checks ran.
func (a *Attempt) Player() *models.PlayerInfo { return a.player }

// Result returns the metrics result label once completed.
func (a *Attempt) Result() string { return a.result }

// ---------------------------------------------------------------------------
// State and completion
// ---------------------------------------------------------------------------

// transition moves to the given state if the state machine allows it.
// Invalid transitions are logged and ignored.
func (a *Attempt) transition(to State) bool {
	if !ValidTransition(a.state, to) {
		a.logger.Warn("login: invalid state transition", "from", a.state, "to", to)
		return false
	}
	a.state = to
	return true
}

// finish moves the attempt to Completed exactly once. It reports false if
// the attempt had already completed.
func (a *Attempt) finish(result string) bool {
	if a.state.IsTerminal() {
		return false
	}
	if a.cancelTimeout != nil {
		a.cancelTimeout()
		a.cancelTimeout = nil
	}
	a.transition(StateCompleted)
	a.result = result
	if a.h.metrics != nil {
		flow := a.flow
		if flow == "" {
			flow = FlowUnsupported
		}
		a.h.metrics.ObserveLogin(string(flow), result, a.h.now().Sub(a.started))
	}
	return true
}

// protocolError completes the attempt for a malformed login and returns
// err unchanged so the handler can surface it to the caller.
func (a *Attempt) protocolError(err error) error {
	a.err = err
	a.logger.Debug("login: rejecting malformed login", "error", err, "code", sserr.GetCode(err))
	if a.finish(ResultProtocolError) {
		a.session.Disconnect(err.Error(), lang.InvalidSession())
	}
	return err
}

// refuse completes the attempt with a kick that is not a verification
// failure.
func (a *Attempt) refuse(result, reason string, msg *lang.Translatable) {
	a.logger.Debug("login: refused", "reason", reason)
	if a.finish(result) {
		a.session.Disconnect(reason, msg)
	}
}

// ---------------------------------------------------------------------------
// Phase 1: pre-login checks
// ---------------------------------------------------------------------------

// preLogin runs the synchronous checks. It returns the effective
// AuthRequired and false if the session was disconnected.
func (a *Attempt) preLogin(player *models.PlayerInfo, clientDataJWT string) (bool, bool) {
	h := a.h
	// The name is checked before anything is parsed, matching what the
	// player would see if the client data were also broken.
	if !models.IsValidUsername(player.Username) {
		a.refuse(ResultRefused, "invalid username", lang.InvalidName())
		return false, false
	}

	cd, err := ParseClientData(clientDataJWT)
	if err != nil {
		a.protocolError(err)
		return false, false
	}
	player.ClientData = cd
	player.Locale = cd.LanguageCode
	a.player = player
	a.session.SetPlayerInfo(player)

	// Built-in checks only set kick flags. Hooks see them and may clear
	// them, so nothing is refused until every hook has run.
	ev := newPreLoginEvent(player, a.session.RemoteIP(), h.cfg.RequireAuthentication)
	if h.connections != nil && h.connections() > h.cfg.MaxPlayers {
		ev.SetKickFlag(KickFlagServerFull, "", lang.ServerFull())
	}
	if h.access != nil {
		lists := h.access.Lists()
		if !lists.IsWhitelisted(player.Username) {
			ev.SetKickFlag(KickFlagWhitelisted, "", lang.Whitelisted())
		}
		if msg := banMessage(lists, player.Username, ev.IP, h.now()); msg != nil {
			ev.SetKickFlag(KickFlagBanned, "", msg)
		}
	}
	for _, hook := range h.hooks {
		hook(ev)
	}

	if flag, kick, kicked := ev.FinalKick(); kicked {
		a.logger.Info("login: pre-login check refused player",
			"player", player.Username, "flag", flag.String())
		a.refuse(ResultRefused, kick.Reason, kick.Message)
		return false, false
	}
	return ev.AuthRequired(), true
}

// banMessage checks the name ban before the IP ban. An IP ban without a
// reason nests the generic IP ban message.
func banMessage(lists *policy.Lists, name, ip string, now time.Time) *lang.Translatable {
	if b, ok := lists.NameBan(name, now); ok {
		if b.Reason == "" {
			return lang.BanNoReason()
		}
		return lang.Ban(b.Reason)
	}
	if b, ok := lists.IPBan(ip, now); ok {
		if b.Reason == "" {
			return lang.Ban(lang.BanIP())
		}
		return lang.Ban(b.Reason)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Phase 2: verification
// ---------------------------------------------------------------------------

// armTimeout schedules [Attempt.timeout] when the handler has a timer and
// a positive VerifyTimeout.
func (a *Attempt) armTimeout() {
	if a.h.timer == nil || a.h.cfg.VerifyTimeout <= 0 {
		return
	}
	a.cancelTimeout = a.h.timer.After(a.h.cfg.VerifyTimeout, a.timeout)
}

// timeout abandons the attempt. Work already running on the pool is left
// to finish; its completion is ignored.
func (a *Attempt) timeout() {
	if a.state.IsTerminal() {
		return
	}
	// The timer already fired, so there is nothing left to cancel.
	a.cancelTimeout = nil
	a.logger.Warn("login: verification timed out", "state", a.state, "after", a.h.cfg.VerifyTimeout)
	if a.finish(ResultTimeout) {
		a.session.Disconnect("login verification timed out", lang.InvalidSession())
	}
}

// verifyFederated resolves the token's signing key and then validates the
// token and client data on the pool. Packets stay suspended until the
// attempt completes.
func (a *Attempt) verifyFederated(r *FederatedRequest, clientData string, authRequired bool) {
	a.session.SuspendPackets()
	a.armTimeout()
	a.transition(StateAwaitingKey)

	if a.h.keys == nil {
		a.complete(failedOutcome(authRequired, sserr.New(sserr.CodeInternalConfiguration,
			"login: no key source configured for federated logins")))
		return
	}
	a.h.keys.GetKey(r.KeyID).OnCompletion(
		func(key auth.KeyResult) {
			if a.state != StateAwaitingKey {
				return
			}
			a.transition(StateVerifying)
			a.submit(auth.NewProcessOpenIDLoginTask(a.h.validator, r.Token, key, clientData, authRequired, a.complete), authRequired)
		},
		func(err error) {
			a.complete(failedOutcome(authRequired, err))
		},
	)
}

// verifyLegacy validates the self-signed chain and client data on the
// pool. No network access is involved.
func (a *Attempt) verifyLegacy(r *LegacyRequest, clientData string, authRequired bool) {
	a.session.SuspendPackets()
	a.armTimeout()
	a.transition(StateVerifying)
	a.submit(auth.NewProcessLegacyLoginTask(a.h.validator, r.Chain, clientData, authRequired, a.complete), authRequired)
}

// submit hands t to the pool. A rejected submission completes the attempt
// immediately with the pool's error code.
func (a *Attempt) submit(t scheduler.Task, authRequired bool) {
	if err := a.h.pool.Submit(t); err != nil {
		a.complete(failedOutcome(authRequired, sserr.Wrap(err, sserr.GetCode(err), "login: cannot schedule verification")))
	}
}

// failedOutcome reports err as a diagnostic. The player sees the generic
// invalid session message.
func failedOutcome(authRequired bool, err error) auth.Outcome {
	return auth.Outcome{
		AuthRequired: authRequired,
		Error:        &auth.ErrorDescriptor{Code: sserr.GetCode(err), Diagnostic: err.Error()},
	}
}

// ---------------------------------------------------------------------------
// Phase 3: completion
// ---------------------------------------------------------------------------

// complete applies a verification outcome. It runs on the main loop and
// ignores outcomes arriving after the attempt completed.
func (a *Attempt) complete(o auth.Outcome) {
	if a.state.IsTerminal() {
		a.logger.Debug("login: ignoring verification result for completed attempt", "result", a.result)
		return
	}
	switch {
	// Verification failed outright; the descriptor carries the player
	// message when one is more specific than invalid session.
	case o.Error != nil:
		a.logger.Debug("login: verification failed", "code", o.Error.Code, "error", o.Error.String())
		msg := o.Error.Message
		if msg == nil {
			msg = lang.InvalidSession()
		}
		if a.finish(ResultRejected) {
			a.session.Disconnect(o.Error.String(), msg)
		}
	// Verification succeeded but the chain was not rooted in a trusted key.
	case o.AuthRequired && !o.Authenticated:
		a.logger.Debug("login: authentication required but player is not authenticated")
		if a.finish(ResultRejected) {
			a.session.Disconnect("not authenticated", lang.NotAuthenticated())
		}
	// Authenticated, or unauthenticated and allowed.
	default:
		result := ResultUnauthenticated
		if o.Authenticated {
			result = ResultAuthenticated
		}
		a.logger.Info("login: player verified",
			"player", a.player.Username, "flow", a.flow, "authenticated", o.Authenticated)
		if a.finish(result) {
			a.session.Continue(a.player, o)
		}
	}
}
