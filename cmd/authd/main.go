// Command authd runs and administers the login verification service.
//
//	authd serve                 run the key cache and expose /metrics and /healthz
//	authd keys                  fetch the identity provider's key set once and print it
//	authd verify -f login.json  verify a captured login payload offline
//	authd ban ...               manage name and IP bans in Redis
//	authd whitelist ...         manage the whitelist in Redis
//
// Configuration comes from struct defaults, an optional --config file and
// AUTHD_* environment variables, in increasing priority.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "authd:", err)
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	// lookupEnv replaces os.LookupEnv in tests.
	lookupEnv func(string) (string, bool)
}

func (o *rootOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "path to a YAML or JSON configuration file")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.StringVar(&o.logFormat, "log-format", "json", "log format (json, text)")
}

func (o *rootOptions) config() (ServerConfig, error) {
	return loadConfig(o.configPath, o.lookupEnv)
}

func (o *rootOptions) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeValidation, "authd: invalid log level %q", o.logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(o.logFormat) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, sserr.Validationf("authd: invalid log format %q", o.logFormat)
	}
}

func newRootCommand() *cobra.Command {
	return newRootCommandWithOptions(&rootOptions{})
}

func newRootCommandWithOptions(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authd",
		Short: "Bedrock login identity verification service",
		Long: `authd verifies Bedrock Edition login payloads. It caches the identity
provider's signing keys, validates federated tokens and legacy self-signed
certificate chains, and enforces bans and the whitelist.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.addFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newServeCommand(opts),
		newKeysCommand(opts),
		newVerifyCommand(opts),
		newBanCommand(opts),
		newWhitelistCommand(opts),
	)
	return cmd
}
