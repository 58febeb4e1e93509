package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/bedrock-auth/internal/testutil"
	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
	"github.com/StricklySoft/bedrock-auth/pkg/lang"
	"github.com/StricklySoft/bedrock-auth/pkg/login"
)

func startTestEngine(t *testing.T) (*engine, ServerConfig) {
	t.Helper()
	cfg, err := loadConfig("", noEnv)
	require.NoError(t, err)

	eng, err := startEngine(context.Background(), cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, eng.shutdown(context.Background())) })
	return eng, cfg
}

func TestStartEngine_InvalidLoginConfigDoesNotFail(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfig("", noEnv)
	require.NoError(t, err)
	cfg.Login = login.Config{}

	eng, err := startEngine(context.Background(), cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err, "the engine does not build a login handler")
	require.NoError(t, eng.shutdown(context.Background()))
}

func TestEngine_LoginHandler(t *testing.T) {
	t.Parallel()
	eng, cfg := startTestEngine(t)

	t.Run("valid config", func(t *testing.T) {
		handler, err := eng.loginHandler(cfg.Login)
		require.NoError(t, err)
		assert.NotNil(t, handler)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := eng.loginHandler(login.Config{})
		testutil.RequireErrorCode(t, err, sserr.CodeValidation)
	})

	t.Run("handler shares the engine loop", func(t *testing.T) {
		handler, err := eng.loginHandler(cfg.Login)
		require.NoError(t, err)

		session := &cliSession{
			ip:         "127.0.0.1",
			logger:     eng.logger,
			translator: lang.NewTranslator(),
			done:       make(chan verdict, 1),
		}
		var attempt *login.Attempt
		var handleErr error
		require.NoError(t, eng.loop.Do(context.Background(), func() {
			attempt, handleErr = handler.HandleLogin(session, []byte(`{"AuthenticationType":1,"Certificate":"","Token":""}`), "")
		}))
		testutil.AssertErrorCode(t, handleErr, sserr.CodeUnsupportedAuthType)
		require.NotNil(t, attempt)
		assert.Equal(t, login.StateCompleted, attempt.State())

		v := <-session.done
		assert.False(t, v.Continued)
		assert.Equal(t, "Invalid session", v.Message)
	})
}
