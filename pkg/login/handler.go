// Package login drives a session from the raw login payload to a
// verification outcome.
//
// [Handler.HandleLogin] runs on the main loop. It classifies the payload
// into the federated or legacy flow, runs the synchronous pre-login checks
// (name, client data, capacity, whitelist, bans, hooks), suspends the
// session's packet processing and then hands verification to the worker
// pool. The pool's completion callback brings the [auth.Outcome] back to
// the main loop, where the session is either continued or disconnected.
package login

import (
	"log/slog"
	"time"

	"github.com/StricklySoft/bedrock-auth/pkg/auth"
	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
	"github.com/StricklySoft/bedrock-auth/pkg/lang"
	"github.com/StricklySoft/bedrock-auth/pkg/models"
	"github.com/StricklySoft/bedrock-auth/pkg/policy"
	"github.com/StricklySoft/bedrock-auth/pkg/promise"
	"github.com/StricklySoft/bedrock-auth/pkg/scheduler"
)

// Session is the network session a login belongs to. All methods are
// called on the main loop.
type Session interface {
	ID() string
	RemoteIP() string
	Logger() *slog.Logger
	// SetPlayerInfo receives the unverified identity once pre-checks have
	// parsed it.
	SetPlayerInfo(player *models.PlayerInfo)
	// SuspendPackets stops processing gameplay packets until the session is
	// continued or disconnected.
	SuspendPackets()
	// Disconnect ends the session. reason is for the server log; message,
	// if non-nil, is shown to the player.
	Disconnect(reason string, message *lang.Translatable)
	// Continue moves the session to the next phase.
	Continue(player *models.PlayerInfo, outcome auth.Outcome)
}

// KeySource resolves identity-provider signing keys. It is satisfied by
// [*auth.KeyProvider].
type KeySource interface {
	GetKey(kid string) *promise.Promise[auth.KeyResult]
}

// AccessPolicy supplies the current access lists. It is satisfied by
// [*policy.Holder].
type AccessPolicy interface {
	Lists() *policy.Lists
}

// Timer schedules a function on the main loop. It is satisfied by
// [*scheduler.Loop].
type Timer interface {
	After(d time.Duration, fn func()) (cancel func() bool)
}

// Metrics records finished login attempts.
type Metrics interface {
	// ObserveLogin is called once per attempt, when it completes. result
	// is one of the Result constants.
	ObserveLogin(flow, result string, elapsed time.Duration)
}

// Results reported to [Metrics].
const (
	ResultAuthenticated   = "authenticated"
	ResultUnauthenticated = "unauthenticated"
	ResultRejected        = "rejected"
	ResultRefused         = "refused"
	ResultProtocolError   = "protocol_error"
	ResultTimeout         = "timeout"
)

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

// Handler runs login attempts. It is not safe for concurrent use; call it
// from the main loop only.
type Handler struct {
	cfg         Config
	validator   auth.ChainValidator
	keys        KeySource
	pool        scheduler.Submitter
	timer       Timer
	access      AccessPolicy
	connections func() int
	hooks       []PreLoginHook
	metrics     Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// HandlerOption configures a [Handler].
type HandlerOption func(*Handler)

// WithTimer enables Config.VerifyTimeout.
func WithTimer(t Timer) HandlerOption {
	return func(h *Handler) { h.timer = t }
}

// WithAccessPolicy sets the ban and whitelist source. Without it every
// player is allowed.
func WithAccessPolicy(p AccessPolicy) HandlerOption {
	return func(h *Handler) { h.access = p }
}

// WithConnectionCount sets the function reporting the number of valid
// connections, including the one logging in.
func WithConnectionCount(fn func() int) HandlerOption {
	return func(h *Handler) { h.connections = fn }
}

// WithPreLoginHook registers a hook. Hooks run in registration order.
func WithPreLoginHook(hook PreLoginHook) HandlerOption {
	return func(h *Handler) { h.hooks = append(h.hooks, hook) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the handler's fallback logger, used when a session
// returns none.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock overrides time.Now for pre-login ban expiry and latency.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a handler. keys is only used by the federated flow and
// may be nil if that flow never occurs. A federated login against a nil
// key source fails with [sserr.CodeInternalConfiguration].
//
// Error codes returned:
//   - [sserr.CodeValidation]: cfg is invalid
//   - [sserr.CodeInternalConfiguration]: pool is nil
//
// Example:
//
//	handler, err := login.NewHandler(cfg, validator, provider, pool,
//	    login.WithTimer(loop),
//	    login.WithAccessPolicy(holder),
//	    login.WithMetrics(metrics),
//	)
//	if err != nil {
//	    return err
//	}
func NewHandler(cfg Config, validator auth.ChainValidator, keys KeySource, pool scheduler.Submitter, opts ...HandlerOption) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "login: worker pool is required")
	}
	h := &Handler{
		cfg:       cfg,
		validator: validator,
		keys:      keys,
		pool:      pool,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// HandleLogin starts a login attempt for s. authInfo is the authentication
// info JSON and clientData the client data token from the login packet.
//
// The returned error is non-nil only for protocol errors, after the session
// has already been disconnected. Policy refusals and verification failures
// are reported to the session, not returned.
//
// Error codes returned:
//   - [sserr.CodeUnexpectedJSON]: authInfo is not the expected object
//   - [sserr.CodeMalformedToken]: a token or the client data cannot be parsed
//   - [sserr.CodeUnsupportedAuthType]: the authentication type is unknown
//   - [sserr.CodeProtocol]: the legacy chain is empty or too long
//
// Example:
//
//	loop.Post(func() {
//	    attempt, err := handler.HandleLogin(session, packet.AuthInfo, packet.ClientData)
//	    if err != nil {
//	        logger.Debug("malformed login", "session", session.ID(), "error", err)
//	        return
//	    }
//	    logger.Debug("login started", "flow", attempt.Flow())
//	})
func (h *Handler) HandleLogin(s Session, authInfo []byte, clientData string) (*Attempt, error) {
	a := h.newAttempt(s)
	a.transition(StateClassifying)

	info, err := ParseAuthenticationInfo(authInfo)
	if err != nil {
		return a, a.protocolError(err)
	}
	req, err := Classify(info, h.cfg.MaxLegacyChainLinks)
	if err != nil {
		return a, a.protocolError(err)
	}
	a.flow = req.Flow()

	switch r := req.(type) {
	case *FederatedRequest:
		authRequired, ok := a.preLogin(r.Player, clientData)
		if !ok {
			return a, a.err
		}
		a.verifyFederated(r, clientData, authRequired)
	case *LegacyRequest:
		authRequired, ok := a.preLogin(r.Player, clientData)
		if !ok {
			return a, a.err
		}
		a.verifyLegacy(r, clientData, authRequired)
	case *UnsupportedRequest:
		return a, a.protocolError(sserr.Newf(sserr.CodeUnsupportedAuthType,
			"login: unsupported authentication type %s", r.Type).WithDetail("type", int(r.Type)))
	}
	return a, nil
}
