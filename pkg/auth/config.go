package auth

import (
	"encoding/base64"
	"net/url"
	"time"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

// Network protocol version used to build the default discovery URL.
const MinecraftVersionNetwork = "1.21.100"

// Identity provider defaults.
const (
	DiscoveryURLBase       = "https://client.discovery.minecraft-services.net/api/v1.0/discovery/MinecraftPE/builds/"
	DefaultServiceURI      = "https://authorization.franchise.minecraft-services.net"
	OpenIDConfigPath       = "/.well-known/openid-configuration"
	KeysPath               = "/.well-known/keys"
	DefaultAudience        = "api://auth-minecraft-services/multiplayer"
	DefaultRefreshInterval = 30 * time.Minute
)

// LegacyMojangRootPublicKey is the root key that was announced for signing
// self-signed login chains. It has never been deployed, so it is not
// trusted unless configured explicitly via
// [KeyProviderConfig.LegacyRootPublicKey].
const LegacyMojangRootPublicKey = "MHYwEAYHKoZIzj0CAQYFK4EEACIDYgAECRXueJeTDqNRRgJi/vlRufByu/2G0i2Ebt6YMar5QX/R0DIIyrJMcUpruK4QveTfJSTp3Shlq4Gk34cD/4GUWwkv0DVuzeuB+tXija7HBxii03NHDbPAD0AKnLr2wdAp"

// DiscoveryURL returns the services discovery document URL for a network
// protocol version.
func DiscoveryURL(version string) string {
	return DiscoveryURLBase + version
}

// KeyProviderConfig configures key discovery and token validation.
type KeyProviderConfig struct {
	// DiscoveryURL is the services discovery document. Its
	// result.serviceEnvironments.auth.prod.serviceUri names the
	// authorization service.
	DiscoveryURL string `json:"discovery_url" yaml:"discovery_url" env:"DISCOVERY_URL" envDefault:"https://client.discovery.minecraft-services.net/api/v1.0/discovery/MinecraftPE/builds/1.21.100"`

	// FallbackServiceURI is used when discovery fails.
	FallbackServiceURI string `json:"fallback_service_uri" yaml:"fallback_service_uri" env:"FALLBACK_SERVICE_URI" envDefault:"https://authorization.franchise.minecraft-services.net"`

	// RefreshInterval is the minimum age of the key ring before an unknown
	// key ID triggers a refetch.
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval" env:"REFRESH_INTERVAL" envDefault:"30m"`

	// HTTPTimeout bounds the whole discovery, configuration and key set
	// fetch.
	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout" env:"HTTP_TIMEOUT" envDefault:"15s"`

	// Audience is the required aud claim of federated tokens.
	Audience string `json:"audience" yaml:"audience" env:"AUDIENCE" envDefault:"api://auth-minecraft-services/multiplayer"`

	// LegacyRootPublicKey is a base64 DER public key. A self-signed chain
	// with a link signed by this key counts as authenticated. Empty means
	// no legacy chain is ever authenticated.
	LegacyRootPublicKey string `json:"legacy_root_public_key" yaml:"legacy_root_public_key" env:"LEGACY_ROOT_PUBLIC_KEY"`
}

// DefaultKeyProviderConfig returns the production defaults.
func DefaultKeyProviderConfig() KeyProviderConfig {
	return KeyProviderConfig{
		DiscoveryURL:       DiscoveryURL(MinecraftVersionNetwork),
		FallbackServiceURI: DefaultServiceURI,
		RefreshInterval:    DefaultRefreshInterval,
		HTTPTimeout:        15 * time.Second,
		Audience:           DefaultAudience,
	}
}

// Validate checks URLs, durations and the root key encoding.
func (c *KeyProviderConfig) Validate() error {
	for name, raw := range map[string]string{
		"discovery_url":        c.DiscoveryURL,
		"fallback_service_uri": c.FallbackServiceURI,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return sserr.Validationf("auth: %s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.RefreshInterval < 0 {
		return sserr.Validation("auth: refresh_interval must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		return sserr.Validation("auth: http_timeout must be positive")
	}
	if c.Audience == "" {
		return sserr.New(sserr.CodeValidationRequired, "auth: audience is required")
	}
	if _, err := c.RootKeyDER(); err != nil {
		return err
	}
	return nil
}

// RootKeyDER decodes LegacyRootPublicKey. It returns nil when unset.
func (c *KeyProviderConfig) RootKeyDER() ([]byte, error) {
	if c.LegacyRootPublicKey == "" {
		return nil, nil
	}
	der, err := base64.StdEncoding.DecodeString(c.LegacyRootPublicKey)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "auth: legacy_root_public_key is not valid base64")
	}
	if _, err := parseDERPublicKey(der); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "auth: legacy_root_public_key is not a public key")
	}
	return der, nil
}
