package fixtures

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// IdentityProvider is an httptest server serving a services discovery
// document, an OpenID configuration and a key set.
//
//	GET /discovery                         -> points auth.prod.serviceUri at the server
//	GET /.well-known/openid-configuration  -> issuer + jwks_uri
//	GET /keys                              -> {"keys": [...]}
type IdentityProvider struct {
	Server *httptest.Server

	// Issuer is returned in the OpenID configuration. It defaults to [Issuer].
	Issuer string

	mu   sync.Mutex
	keys []any

	// Status codes; zero means 200.
	DiscoveryStatus atomic.Int32
	OpenIDStatus    atomic.Int32
	KeysStatus      atomic.Int32

	KeyRequests atomic.Int32
}

// NewIdentityProvider starts a provider publishing keys.
func NewIdentityProvider(t testing.TB, keys ...*RSAKey) *IdentityProvider {
	t.Helper()
	p := &IdentityProvider{Issuer: Issuer}
	for _, k := range keys {
		p.keys = append(p.keys, k.JWK())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/discovery", func(w http.ResponseWriter, r *http.Request) {
		p.write(w, &p.DiscoveryStatus, map[string]any{
			"result": map[string]any{
				"serviceEnvironments": map[string]any{
					"auth": map[string]any{
						"prod": map[string]any{"serviceUri": p.Server.URL},
					},
				},
			},
		})
	})
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		p.write(w, &p.OpenIDStatus, map[string]any{
			"issuer":   p.Issuer,
			"jwks_uri": p.Server.URL + "/keys",
		})
	})
	keysHandler := func(w http.ResponseWriter, r *http.Request) {
		p.KeyRequests.Add(1)
		p.mu.Lock()
		doc := map[string]any{"keys": append([]any(nil), p.keys...)}
		p.mu.Unlock()
		p.write(w, &p.KeysStatus, doc)
	}
	mux.HandleFunc("/keys", keysHandler)
	mux.HandleFunc("/.well-known/keys", keysHandler)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// DiscoveryURL returns the services discovery endpoint.
func (p *IdentityProvider) DiscoveryURL() string {
	return p.Server.URL + "/discovery"
}

// SetKeys replaces the published key set. Entries may be *RSAKey or raw maps.
func (p *IdentityProvider) SetKeys(keys ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = p.keys[:0]
	for _, k := range keys {
		if rk, ok := k.(*RSAKey); ok {
			p.keys = append(p.keys, rk.JWK())
			continue
		}
		p.keys = append(p.keys, k)
	}
}

func (p *IdentityProvider) write(w http.ResponseWriter, status *atomic.Int32, body any) {
	if code := status.Load(); code != 0 && code != http.StatusOK {
		w.WriteHeader(int(code))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
