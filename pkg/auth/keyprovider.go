package auth

import (
	"log/slog"
	"time"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
	"github.com/StricklySoft/bedrock-auth/pkg/promise"
	"github.com/StricklySoft/bedrock-auth/pkg/scheduler"
)

// KeyResult is a resolved signing key together with the issuer it belongs
// to.
type KeyResult struct {
	// Issuer is the issuer of the key ring the key came from. Identity
	// tokens signed by the key must carry it as their iss claim.
	Issuer string

	// DER is the PKIX encoding of the RSA public key.
	DER []byte
}

// FetchMetrics observes key fetches. A nil value disables observation.
// The Prometheus collectors in cmd/authd implement it.
type FetchMetrics interface {
	// ObserveKeyFetch records one completed fetch and how many keys it
	// installed. keys is zero whenever success is false.
	ObserveKeyFetch(success bool, keys int)
}

// KeyProvider owns the cached [KeyRing] and decides when to refetch it.
//
// A KeyProvider belongs to the main loop: every method, and every
// completion it schedules, must run there. At most one fetch is in flight;
// callers arriving while one is pending share its outcome.
type KeyProvider struct {
	cfg     KeyProviderConfig
	pool    scheduler.Submitter
	client  HTTPClient
	logger  *slog.Logger
	metrics FetchMetrics
	now     func() time.Time

	ring      *KeyRing
	lastFetch time.Time
	inFlight  *promise.Resolver[*KeyRing]
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// KeyProviderOption configures a [KeyProvider].
type KeyProviderOption func(*KeyProvider)

// WithHTTPClient sets the client used by key fetches.
func WithHTTPClient(c HTTPClient) KeyProviderOption {
	return func(p *KeyProvider) { p.client = c }
}

// WithLogger sets the provider's logger.
func WithLogger(l *slog.Logger) KeyProviderOption {
	return func(p *KeyProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) KeyProviderOption {
	return func(p *KeyProvider) { p.now = now }
}

// WithFetchMetrics sets the fetch observer.
func WithFetchMetrics(m FetchMetrics) KeyProviderOption {
	return func(p *KeyProvider) { p.metrics = m }
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// NewKeyProvider creates a provider submitting fetches to pool. A zero
// RefreshInterval uses [DefaultRefreshInterval]. No fetch starts until the
// first [KeyProvider.GetKey] or [KeyProvider.Refresh].
//
// Example:
//
//	provider := auth.NewKeyProvider(cfg, pool,
//	    auth.WithLogger(logger),
//	    auth.WithFetchMetrics(metrics),
//	)
//	provider.Refresh()
func NewKeyProvider(cfg KeyProviderConfig, pool scheduler.Submitter, opts ...KeyProviderOption) *KeyProvider {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	p := &KeyProvider{
		cfg:    cfg,
		pool:   pool,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ring returns the current key ring, or nil before the first successful
// fetch.
func (p *KeyProvider) Ring() *KeyRing {
	return p.ring
}

// GetKey resolves the signing key for kid.
//
// Keys are refetched only when nothing has been fetched yet, or when kid is
// unknown and the ring is at least RefreshInterval old. An unknown kid on a
// fresh ring is rejected with [sserr.CodeUnknownKeyID] without touching the
// network, so clients cannot force refetches with made-up IDs.
//
// The returned promise completes on the main loop. It is rejected with:
//   - [sserr.CodeUnknownKeyID]: kid is not in the (possibly refreshed) ring
//   - [sserr.CodeKeyFetch]: no usable key ring could be fetched
//
// Example:
//
//	provider.GetKey(kid).OnCompletion(
//	    func(key auth.KeyResult) {
//	        claims, err := validator.ValidateOpenIDToken(token, key.DER, key.Issuer)
//	        // ...
//	    },
//	    func(err error) { reject(err) },
//	)
func (p *KeyProvider) GetKey(kid string) *promise.Promise[KeyResult] {
	resolver := promise.NewResolver[KeyResult]()

	_, known := p.lookup(kid)
	if p.ring == nil || (!known && p.now().Sub(p.lastFetch) >= p.cfg.RefreshInterval) {
		p.fetchKeys().OnCompletion(
			func(ring *KeyRing) { p.resolveKey(resolver, ring, kid) },
			func(err error) { resolver.Reject(err) },
		)
	} else {
		p.resolveKey(resolver, p.ring, kid)
	}
	return resolver.Promise()
}

// Refresh starts a fetch unless one is already in flight. It is used to warm
// the cache at startup.
func (p *KeyProvider) Refresh() *promise.Promise[*KeyRing] {
	return p.fetchKeys()
}

// ---------------------------------------------------------------------------
// Fetch lifecycle
// ---------------------------------------------------------------------------

// lookup reports whether kid is in the current ring.
func (p *KeyProvider) lookup(kid string) ([]byte, bool) {
	if p.ring == nil {
		return nil, false
	}
	return p.ring.Key(kid)
}

// resolveKey settles resolver from ring.
func (p *KeyProvider) resolveKey(resolver *promise.Resolver[KeyResult], ring *KeyRing, kid string) {
	der, ok := ring.Key(kid)
	if !ok {
		p.logger.Debug("auth: key not recognised", "kid", kid)
		resolver.Reject(sserr.Newf(sserr.CodeUnknownKeyID,
			"auth: unrecognized authentication key ID %q", kid).WithDetail("kid", kid))
		return
	}
	p.logger.Debug("auth: key found in key ring", "kid", kid)
	resolver.Resolve(KeyResult{Issuer: ring.Issuer(), DER: der})
}

// fetchKeys submits a [KeyFetchTask], or joins the one in flight. A
// submission failure rejects immediately with [sserr.CodeKeyFetch].
func (p *KeyProvider) fetchKeys() *promise.Promise[*KeyRing] {
	if p.inFlight != nil {
		p.logger.Debug("auth: key refresh requested while one is already in progress")
		return p.inFlight.Promise()
	}

	p.logger.Info("auth: fetching new authentication keys")
	resolver := promise.NewResolver[*KeyRing]()
	p.inFlight = resolver

	task := NewKeyFetchTask(p.cfg, p.client, p.onKeysFetched)
	if err := p.pool.Submit(task); err != nil {
		p.inFlight = nil
		p.logger.Error("auth: cannot schedule key fetch", "error", err)
		p.observe(false, 0)
		resolver.Reject(sserr.Wrap(err, sserr.CodeKeyFetch, "auth: cannot schedule key fetch"))
	}
	return resolver.Promise()
}

// onKeysFetched runs on the main loop when a [KeyFetchTask] completes.
// Only entries with use "sig", kty "RSA" and a parseable key survive. The
// previous ring is kept when nothing survives.
func (p *KeyProvider) onKeysFetched(res FetchResult) {
	resolver := p.inFlight
	if resolver == nil {
		p.logger.Error("auth: key fetch completed with no fetch in flight")
		return
	}
	p.inFlight = nil

	if len(res.Errors) > 0 {
		// Keys may still have been fetched, so keep going.
		p.logger.Error("auth: errors occurred while fetching new keys", "errors", res.Errors)
	}

	if res.Keys == nil {
		p.logger.Error("auth: failed to fetch authentication keys, federated players cannot authenticate",
			"critical", true)
		p.observe(false, 0)
		resolver.Reject(sserr.New(sserr.CodeKeyFetch, "auth: failed to fetch authentication keys").
			WithDetail("errors", res.Errors))
		return
	}

	keys := make(map[string][]byte, len(res.Keys))
	for _, k := range res.Keys {
		if k.Use != "sig" || k.KeyType != "RSA" {
			p.logger.Error("auth: key does not have the expected properties",
				"kid", k.KeyID, "use", k.Use, "kty", k.KeyType,
				"expected_use", "sig", "expected_kty", "RSA")
			continue
		}
		if k.Err != "" {
			p.logger.Error("auth: discarding key", "kid", k.KeyID, "reason", k.Err)
			continue
		}
		if _, err := parseDERPublicKey(k.DER); err != nil {
			p.logger.Error("auth: failed to parse RSA public key", "kid", k.KeyID, "error", err)
			continue
		}
		keys[k.KeyID] = k.DER
	}

	if len(keys) == 0 {
		p.logger.Error("auth: no valid authentication keys returned, federated players cannot authenticate",
			"critical", true, "issuer", res.Issuer, "entries", len(res.Keys))
		p.observe(false, 0)
		resolver.Reject(sserr.New(sserr.CodeKeyFetch, "auth: no valid authentication keys returned").
			WithDetail("issuer", res.Issuer))
		return
	}

	ring := NewKeyRing(res.Issuer, keys)
	p.ring = ring
	p.lastFetch = p.now()
	p.logger.Info("auth: fetched new authentication keys",
		"issuer", ring.Issuer(), "count", ring.Len(), "key_ids", ring.KeyIDs())
	p.observe(true, ring.Len())
	resolver.Resolve(ring)
}

func (p *KeyProvider) observe(success bool, keys int) {
	if p.metrics != nil {
		p.metrics.ObserveKeyFetch(success, keys)
	}
}
