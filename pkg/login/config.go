package login

import (
	"time"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

// DefaultMaxLegacyChainLinks bounds the self-signed certificate chain.
const DefaultMaxLegacyChainLinks = 3

// Config controls the login pipeline.
type Config struct {
	// MaxPlayers is compared against the connection counter during the
	// pre-login checks.
	MaxPlayers int `json:"max_players" yaml:"max_players" env:"MAX_PLAYERS" envDefault:"20"`

	// RequireAuthentication is the default AuthRequired of every
	// PreLoginEvent. Hooks may override it per player.
	RequireAuthentication bool `json:"require_authentication" yaml:"require_authentication" env:"REQUIRE_AUTHENTICATION" envDefault:"true"`

	// MaxLegacyChainLinks bounds the number of links in a self-signed
	// certificate chain. Longer chains are protocol errors.
	MaxLegacyChainLinks int `json:"max_legacy_chain_links" yaml:"max_legacy_chain_links" env:"MAX_LEGACY_CHAIN_LINKS" envDefault:"3"`

	// VerifyTimeout disconnects a session whose verification has not
	// completed in time. Zero disables the timeout.
	VerifyTimeout time.Duration `json:"verify_timeout" yaml:"verify_timeout" env:"VERIFY_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns the defaults the struct tags declare.
func DefaultConfig() Config {
	return Config{
		MaxPlayers:            20,
		RequireAuthentication: true,
		MaxLegacyChainLinks:   DefaultMaxLegacyChainLinks,
		VerifyTimeout:         30 * time.Second,
	}
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.MaxPlayers < 1 {
		return sserr.Validationf("login: max players must be positive, got %d", c.MaxPlayers)
	}
	if c.MaxLegacyChainLinks < 1 {
		return sserr.Validationf("login: max legacy chain links must be positive, got %d", c.MaxLegacyChainLinks)
	}
	if c.VerifyTimeout < 0 {
		return sserr.Validation("login: verify timeout must not be negative")
	}
	return nil
}
