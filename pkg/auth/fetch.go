package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
// It follows the Go module path convention for OTel instrumentation libraries.
const tracerName = "github.com/StricklySoft/bedrock-auth/pkg/auth"

// maxResponseSize limits every document read from the identity provider.
// Bodies are truncated at this size, which makes an oversized document fail
// to decode rather than exhaust memory.
const maxResponseSize = 1 << 20

// HTTPClient is the subset of [http.Client] the key fetch uses. Supply a
// custom implementation for proxies, mTLS or request tracing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ServiceKey is one entry of the identity provider's key set. DER is set
// only for RSA entries that decoded cleanly; otherwise Err says why not.
// The [KeyProvider] decides which entries make it into the [KeyRing].
type ServiceKey struct {
	// KeyID is the kid of the entry, or "#<index>" when the entry had none.
	KeyID string

	// KeyType is the kty field, e.g. "RSA".
	KeyType string

	// Use is the declared use. Only "sig" entries are ever trusted.
	Use string

	// DER is the PKIX encoding of the RSA public key.
	DER []byte

	// Err explains why DER is unset for an RSA entry.
	Err string
}

// FetchResult is what a [KeyFetchTask] hands back to the main loop. Keys is
// nil if the key set could not be fetched at all. Errors lists the
// non-fatal problems hit along the way, including fallbacks taken.
//
// FetchResult holds only copies, so it is safe to hand from the worker to
// the main loop.
type FetchResult struct {
	// Keys are the decoded key set entries in document order.
	Keys []ServiceKey

	// Issuer is the issuer declared by the OpenID configuration, or the
	// service URI when the configuration could not be read.
	Issuer string

	// Errors are the messages of every failed step, in step order.
	Errors []string
}

// KeyFetchTask discovers the authorization service, reads its OpenID
// configuration and downloads its key set. Each step falls back to a
// conventional value on failure so that later steps still get a chance:
//
//  1. GET the services discovery document and read auth.prod.serviceUri.
//     On failure use the configured fallback service URI.
//  2. GET <serviceUri>/.well-known/openid-configuration for jwks_uri and
//     issuer. On failure use <serviceUri>/.well-known/keys and treat the
//     service URI itself as the issuer.
//  3. GET the key set and decode every entry into a [ServiceKey].
//
// Run executes on a worker and touches only the task's own fields.
// Complete delivers the result on the main loop. The task is submitted by
// [KeyProvider]; callers rarely construct one directly.
//
// Each step is traced as a child span of "auth.FetchKeys".
type KeyFetchTask struct {
	discoveryURL string
	fallbackURI  string
	timeout      time.Duration
	client       HTTPClient
	tracer       trace.Tracer
	onCompletion func(FetchResult)

	result FetchResult
}

// NewKeyFetchTask creates a fetch using cfg's discovery settings. A nil
// client uses [http.DefaultClient]. cfg.HTTPTimeout bounds the whole fetch,
// not each request.
//
// Example:
//
//	task := auth.NewKeyFetchTask(cfg, httpClient, func(res auth.FetchResult) {
//	    logger.Info("keys fetched", "issuer", res.Issuer, "keys", len(res.Keys))
//	})
//	if err := pool.Submit(task); err != nil {
//	    return err
//	}
func NewKeyFetchTask(cfg KeyProviderConfig, client HTTPClient, onCompletion func(FetchResult)) *KeyFetchTask {
	if client == nil {
		client = http.DefaultClient
	}
	return &KeyFetchTask{
		discoveryURL: cfg.DiscoveryURL,
		fallbackURI:  strings.TrimRight(cfg.FallbackServiceURI, "/"),
		timeout:      cfg.HTTPTimeout,
		client:       client,
		tracer:       otel.Tracer(tracerName),
		onCompletion: onCompletion,
	}
}

// Run performs the three fetch steps. Failures are collected with multierr
// and never abort the pipeline; a missing key set is reported through
// FetchResult.Keys being nil.
func (t *KeyFetchTask) Run(ctx context.Context) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	ctx, span := startSpan(ctx, t.tracer, "auth.FetchKeys")
	defer span.End()

	var errs error

	// Step 1: service discovery.
	serviceURI, err := t.serviceURI(ctx)
	if err != nil {
		errs = multierr.Append(errs, err)
		serviceURI = t.fallbackURI
	}

	// Step 2: OpenID configuration, defaulting to the conventional paths.
	jwksURL, issuer := serviceURI+KeysPath, serviceURI
	if cfg, err := t.openIDConfiguration(ctx, serviceURI); err != nil {
		errs = multierr.Append(errs, err)
	} else {
		jwksURL, issuer = cfg.JWKSURL, cfg.IssuerURL
	}

	// Step 3: the key set itself. Nothing to fall back to.
	keys, err := t.keySet(ctx, jwksURL)
	if err != nil {
		errs = multierr.Append(errs, err)
		finishSpan(span, err)
	}

	span.SetAttributes(
		attribute.String("auth.service_uri", serviceURI),
		attribute.String("auth.issuer", issuer),
		attribute.Int("auth.keys", len(keys)),
		attribute.Int("auth.fetch_errors", len(multierr.Errors(errs))),
	)
	t.result = FetchResult{Keys: keys, Issuer: issuer, Errors: errorStrings(errs)}
}

// Recovered records a panic raised by Run as a total failure.
func (t *KeyFetchTask) Recovered(err error) {
	t.result = FetchResult{Issuer: t.fallbackURI, Errors: []string{err.Error()}}
}

// Complete runs on the main loop and hands the result to the completion
// callback.
func (t *KeyFetchTask) Complete() {
	if t.onCompletion != nil {
		t.onCompletion(t.result)
	}
}

// Result returns the fetch result. It is valid after Run returns.
func (t *KeyFetchTask) Result() FetchResult {
	return t.result
}

// ---------------------------------------------------------------------------
// Step 1: service discovery
// ---------------------------------------------------------------------------

// servicesDiscovery is the part of the discovery document the fetch reads.
type servicesDiscovery struct {
	Result struct {
		ServiceEnvironments struct {
			Auth struct {
				Prod struct {
					ServiceURI string `json:"serviceUri"`
				} `json:"prod"`
			} `json:"auth"`
		} `json:"serviceEnvironments"`
	} `json:"result"`
}

// serviceURI returns the authorization service URI without a trailing
// slash.
func (t *KeyFetchTask) serviceURI(ctx context.Context) (string, error) {
	ctx, span := startSpan(ctx, t.tracer, "auth.FetchKeys.discovery")
	defer span.End()

	var doc servicesDiscovery
	if err := t.getJSON(ctx, t.discoveryURL, &doc); err != nil {
		finishSpan(span, err)
		return "", err
	}
	uri := doc.Result.ServiceEnvironments.Auth.Prod.ServiceURI
	if uri == "" {
		err := sserr.Newf(sserr.CodeUnexpectedJSON, "auth: invalid discovery document %q: missing auth.prod.serviceUri", t.discoveryURL)
		finishSpan(span, err)
		return "", err
	}
	return strings.TrimRight(uri, "/"), nil
}

// ---------------------------------------------------------------------------
// Step 2: OpenID configuration
// ---------------------------------------------------------------------------

// openIDConfiguration reads the provider metadata. Only issuer and
// jwks_uri are used; both are required.
func (t *KeyFetchTask) openIDConfiguration(ctx context.Context, serviceURI string) (*oidc.ProviderConfig, error) {
	ctx, span := startSpan(ctx, t.tracer, "auth.FetchKeys.openid_configuration")
	defer span.End()

	url := serviceURI + OpenIDConfigPath
	var cfg oidc.ProviderConfig
	if err := t.getJSON(ctx, url, &cfg); err != nil {
		finishSpan(span, err)
		return nil, err
	}
	if cfg.JWKSURL == "" || cfg.IssuerURL == "" {
		err := sserr.Newf(sserr.CodeUnexpectedJSON, "auth: invalid OpenID configuration %q: issuer and jwks_uri are required", url)
		finishSpan(span, err)
		return nil, err
	}
	return &cfg, nil
}

// ---------------------------------------------------------------------------
// Step 3: key set
// ---------------------------------------------------------------------------

// jwksDocument keeps entries raw so that one malformed entry does not
// discard the others.
type jwksDocument struct {
	Keys []json.RawMessage `json:"keys"`
}

// jwkHeader holds the fields read from every entry, RSA or not.
type jwkHeader struct {
	KeyID   string `json:"kid"`
	KeyType string `json:"kty"`
	Use     string `json:"use"`
}

// keySet downloads the key set and decodes each entry independently.
func (t *KeyFetchTask) keySet(ctx context.Context, jwksURL string) ([]ServiceKey, error) {
	ctx, span := startSpan(ctx, t.tracer, "auth.FetchKeys.jwks")
	defer span.End()

	var doc jwksDocument
	if err := t.getJSON(ctx, jwksURL, &doc); err != nil {
		finishSpan(span, err)
		return nil, err
	}
	if doc.Keys == nil {
		err := sserr.Newf(sserr.CodeUnexpectedJSON, "auth: invalid key set %q: missing keys array", jwksURL)
		finishSpan(span, err)
		return nil, err
	}

	keys := make([]ServiceKey, 0, len(doc.Keys))
	for i, raw := range doc.Keys {
		keys = append(keys, decodeServiceKey(i, raw))
	}
	return keys, nil
}

// decodeServiceKey reads the descriptive fields of a JWKS entry and, for
// RSA entries, converts the modulus and exponent into a DER public key.
func decodeServiceKey(index int, raw json.RawMessage) ServiceKey {
	var h jwkHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return ServiceKey{KeyID: fmt.Sprintf("#%d", index), Err: "entry is not an object: " + err.Error()}
	}
	key := ServiceKey{KeyID: h.KeyID, KeyType: h.KeyType, Use: h.Use}
	if key.KeyID == "" {
		key.KeyID = fmt.Sprintf("#%d", index)
		key.Err = "missing kid"
		return key
	}
	if h.KeyType != "RSA" {
		return key
	}

	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(raw); err != nil {
		key.Err = "invalid RSA key: " + err.Error()
		return key
	}
	pub, ok := jwk.Key.(*rsa.PublicKey)
	if !ok {
		key.Err = fmt.Sprintf("expected RSA public key, got %T", jwk.Key)
		return key
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		key.Err = "cannot encode RSA key: " + err.Error()
		return key
	}
	key.DER = der
	return key
}

// ---------------------------------------------------------------------------
// HTTP and tracing helpers
// ---------------------------------------------------------------------------

// getJSON fetches url and decodes a JSON object into v. Any status other
// than 200 is an error.
//
// Error codes returned:
//   - [sserr.CodeKeyFetch]: transport failure or non-200 status
//   - [sserr.CodeUnexpectedJSON]: body is not a JSON object or does not decode
func (t *KeyFetchTask) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeKeyFetch, "auth: failed to create request for %q", url)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeKeyFetch, "auth: failed accessing %q", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return sserr.Newf(sserr.CodeKeyFetch, "auth: unexpected HTTP response code accessing %q: %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeKeyFetch, "auth: failed reading %q", url)
	}
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return sserr.Newf(sserr.CodeUnexpectedJSON, "auth: unexpected root type in %q, expected object", url)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return sserr.Wrapf(err, sserr.CodeUnexpectedJSON, "auth: invalid JSON from %q", url)
	}
	return nil
}

// errorStrings flattens a multierr chain into messages, or nil if empty.
func errorStrings(err error) []string {
	errs := multierr.Errors(err)
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

// startSpan starts a span on tracer. It exists so call sites read the
// same in the fetch task and the login tasks.
func startSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, opts...)
}

// finishSpan records err on the span and marks it failed.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
