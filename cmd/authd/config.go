package main

import (
	"time"

	"github.com/StricklySoft/bedrock-auth/pkg/auth"
	"github.com/StricklySoft/bedrock-auth/pkg/config"
	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
	"github.com/StricklySoft/bedrock-auth/pkg/login"
	"github.com/StricklySoft/bedrock-auth/pkg/policy"
)

// envPrefix namespaces every environment variable, e.g.
// AUTHD_KEYS_REFRESH_INTERVAL or AUTHD_REDIS_ADDR.
const envPrefix = "AUTHD"

// ServerConfig is the complete authd configuration.
type ServerConfig struct {
	// Listen is the address of the health and metrics server started by
	// the serve command.
	Listen string `json:"listen" yaml:"listen" env:"LISTEN" envDefault:":9100"`

	// Workers is the size of the verification worker pool.
	Workers int `json:"workers" yaml:"workers" env:"WORKERS" envDefault:"4"`

	// ShutdownGrace bounds how long serve waits for the HTTP server and
	// the worker pool to drain after a signal.
	ShutdownGrace time.Duration `json:"shutdown_grace" yaml:"shutdown_grace" env:"SHUTDOWN_GRACE" envDefault:"10s"`

	// MetricsNamespace prefixes every Prometheus metric name.
	MetricsNamespace string `json:"metrics_namespace" yaml:"metrics_namespace" env:"METRICS_NAMESPACE" envDefault:"bedrock_auth"`

	// PolicyStore enables loading bans and the whitelist from Redis.
	PolicyStore bool `json:"policy_store" yaml:"policy_store" env:"POLICY_STORE" envDefault:"false"`

	// PolicyReload is the interval between Redis reloads while serving.
	// Ignored unless PolicyStore is set.
	PolicyReload time.Duration `json:"policy_reload" yaml:"policy_reload" env:"POLICY_RELOAD" envDefault:"1m"`

	// Keys configures key discovery and token validation. Variables are
	// prefixed AUTHD_KEYS_.
	Keys auth.KeyProviderConfig `json:"keys" yaml:"keys" env:"KEYS"`

	// Login configures the login pipeline. Variables are prefixed
	// AUTHD_LOGIN_.
	Login login.Config `json:"login" yaml:"login" env:"LOGIN"`

	// Redis is the policy store connection. Variables are prefixed
	// AUTHD_REDIS_.
	Redis policy.RedisConfig `json:"redis" yaml:"redis" env:"REDIS"`
}

// Validate checks the top-level fields and every nested section.
func (c *ServerConfig) Validate() error {
	if c.Workers < 1 {
		return sserr.Validationf("authd: workers must be positive, got %d", c.Workers)
	}
	if c.PolicyReload <= 0 {
		return sserr.Validation("authd: policy_reload must be positive")
	}
	if err := c.Keys.Validate(); err != nil {
		return err
	}
	if err := c.Login.Validate(); err != nil {
		return err
	}
	if c.PolicyStore {
		return c.Redis.Validate()
	}
	return nil
}

// loadConfig resolves defaults, the optional file at path and AUTHD_*
// environment variables.
func loadConfig(path string, lookup func(string) (string, bool)) (ServerConfig, error) {
	loader := config.New().WithEnvPrefix(envPrefix)
	if path != "" {
		loader = loader.WithFile(path)
	}
	if lookup != nil {
		loader = loader.WithLookup(lookup)
	}
	return config.Load[ServerConfig](loader)
}
