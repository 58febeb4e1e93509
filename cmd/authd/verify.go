package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/StricklySoft/bedrock-auth/pkg/auth"
	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
	"github.com/StricklySoft/bedrock-auth/pkg/lang"
	"github.com/StricklySoft/bedrock-auth/pkg/models"
	"github.com/StricklySoft/bedrock-auth/pkg/policy"
)

// capturedLogin is the file format read by verify. AuthInfo may be the
// authentication info object itself or the JSON string carried on the wire.
type capturedLogin struct {
	AuthInfo   json.RawMessage `json:"authInfo"`
	ClientData string          `json:"clientData"`
	RemoteIP   string          `json:"remoteIp"`
}

func (c *capturedLogin) authInfoBytes() ([]byte, error) {
	var s string
	if err := json.Unmarshal(c.AuthInfo, &s); err == nil {
		return []byte(s), nil
	}
	if len(c.AuthInfo) == 0 {
		return nil, sserr.New(sserr.CodeValidationRequired, "authd: captured login has no authInfo")
	}
	return c.AuthInfo, nil
}

// verdict is what the session saw at the end of the attempt.
type verdict struct {
	Player        string `json:"player,omitempty"`
	XUID          string `json:"xuid,omitempty"`
	UUID          string `json:"uuid,omitempty"`
	Continued     bool   `json:"continued"`
	Authenticated bool   `json:"authenticated"`
	Reason        string `json:"reason,omitempty"`
	Message       string `json:"message,omitempty"`
}

// cliSession is a login.Session that reports the outcome on a channel.
type cliSession struct {
	ip         string
	logger     *slog.Logger
	translator *lang.Translator
	player     *models.PlayerInfo
	done       chan verdict
}

func (s *cliSession) ID() string                         { return "cli" }
func (s *cliSession) RemoteIP() string                   { return s.ip }
func (s *cliSession) Logger() *slog.Logger               { return s.logger }
func (s *cliSession) SetPlayerInfo(p *models.PlayerInfo) { s.player = p }
func (s *cliSession) SuspendPackets()                    {}

func (s *cliSession) base() verdict {
	var v verdict
	if s.player != nil {
		v.Player = s.player.Username
		v.XUID = s.player.XUID
		v.UUID = s.player.UUID.String()
	}
	return v
}

func (s *cliSession) Disconnect(reason string, message *lang.Translatable) {
	v := s.base()
	v.Reason = reason
	if message != nil {
		locale := ""
		if s.player != nil {
			locale = s.player.Locale
		}
		v.Message = s.translator.Translate(locale, message)
	}
	s.done <- v
}

func (s *cliSession) Continue(_ *models.PlayerInfo, o auth.Outcome) {
	v := s.base()
	v.Continued = true
	v.Authenticated = o.Authenticated
	s.done <- v
}

func newVerifyCommand(opts *rootOptions) *cobra.Command {
	var (
		file          string
		skipPolicy    bool
		optionalLogin bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a captured login payload",
		Long: `verify runs a captured login through the same pipeline the server uses:
classification, pre-login checks, key lookup and signature verification.
It exits non-zero if the session would have been disconnected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if optionalLogin {
				cfg.Login.RequireAuthentication = false
			}
			logger, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			captured, err := readCapturedLogin(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			v, err := verifyLogin(cmd.Context(), cfg, captured, !skipPolicy, logger)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(v); err != nil {
				return err
			}
			if !v.Continued {
				return sserr.Newf(sserr.CodeAuthentication, "authd: login rejected: %s", v.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "captured login JSON file, - for stdin")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "do not load bans and the whitelist even if the policy store is enabled")
	cmd.Flags().BoolVar(&optionalLogin, "allow-unauthenticated", false, "accept logins that are not authenticated")
	return cmd
}

func readCapturedLogin(path string, stdin io.Reader) (*capturedLogin, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "authd: cannot read captured login")
	}
	var c capturedLogin
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnexpectedJSON, "authd: captured login is not valid JSON")
	}
	return &c, nil
}

func verifyLogin(ctx context.Context, cfg ServerConfig, captured *capturedLogin, withPolicy bool, logger *slog.Logger) (verdict, error) {
	authInfo, err := captured.authInfoBytes()
	if err != nil {
		return verdict{}, err
	}
	ip := captured.RemoteIP
	if ip == "" {
		ip = "127.0.0.1"
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eng, err := startEngine(ctx, cfg, nil, logger)
	if err != nil {
		return verdict{}, err
	}
	defer func() { _ = eng.shutdown(context.Background()) }()
	handler, err := eng.loginHandler(cfg.Login)
	if err != nil {
		return verdict{}, err
	}

	if withPolicy && cfg.PolicyStore {
		store, err := policy.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return verdict{}, err
		}
		lists, err := store.Load(ctx)
		_ = store.Close()
		if err != nil {
			return verdict{}, err
		}
		eng.policy.Store(lists)
	}

	session := &cliSession{
		ip:         ip,
		logger:     logger,
		translator: lang.NewTranslator(),
		done:       make(chan verdict, 1),
	}
	var handleErr error
	if err := eng.loop.Do(ctx, func() {
		_, handleErr = handler.HandleLogin(session, authInfo, captured.ClientData)
	}); err != nil {
		return verdict{}, err
	}
	if handleErr != nil {
		logger.Debug("authd: login payload rejected", "error", handleErr)
	}

	select {
	case v := <-session.done:
		return v, nil
	case <-ctx.Done():
		return verdict{}, sserr.Wrap(ctx.Err(), sserr.CodeTimeout, "authd: waiting for verification")
	case <-eng.loop.Done():
		return verdict{}, errLoopStopped
	}
}
