package login

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/bedrock-auth/internal/testutil"
	"github.com/StricklySoft/bedrock-auth/pkg/config"
	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

func TestConfig_LoadMatchesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load[Config](config.New().WithLookup(func(string) (string, bool) { return "", false }))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"LOGIN_MAX_PLAYERS":            "100",
		"LOGIN_REQUIRE_AUTHENTICATION": "false",
		"LOGIN_VERIFY_TIMEOUT":         "5s",
	}
	cfg, err := config.Load[Config](config.New().WithEnvPrefix("login").WithLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.MaxPlayers)
	assert.False(t, cfg.RequireAuthentication)
	assert.Equal(t, "5s", cfg.VerifyTimeout.String())
	assert.Equal(t, DefaultMaxLegacyChainLinks, cfg.MaxLegacyChainLinks)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero players", func(c *Config) { c.MaxPlayers = 0 }},
		{"zero chain links", func(c *Config) { c.MaxLegacyChainLinks = 0 }},
		{"negative timeout", func(c *Config) { c.VerifyTimeout = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			testutil.AssertErrorCode(t, cfg.Validate(), sserr.CodeValidation)
		})
	}
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}
