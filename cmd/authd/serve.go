package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
	"github.com/StricklySoft/bedrock-auth/pkg/metrics"
	"github.com/StricklySoft/bedrock-auth/pkg/policy"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the key cache and serve metrics and health endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}
			logger, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return sserr.Wrapf(err, sserr.CodeUnavailable, "authd: cannot listen on %s", cfg.Listen)
			}
			return serve(cmd.Context(), cfg, ln, logger)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", ":9100", "address for /metrics and /healthz")
	return cmd
}

// serve runs until ctx is cancelled. It keeps the identity provider's key
// cache warm, reloads the access lists when a policy store is configured
// and exposes /metrics, /healthz and /readyz. It accepts no logins itself:
// a game server embeds pkg/login, and the verify command drives a handler
// for captured payloads.
func serve(ctx context.Context, cfg ServerConfig, ln net.Listener, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.MetricsNamespace)
	m.MustRegister(reg)

	eng, err := startEngine(ctx, cfg, m, logger)
	if err != nil {
		_ = ln.Close()
		return err
	}

	var store *policy.RedisStore
	if cfg.PolicyStore {
		store, err = policy.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			_ = ln.Close()
			_ = eng.shutdown(context.Background())
			return err
		}
		defer store.Close()
		go reloadPolicy(ctx, store, eng.policy, m, cfg.PolicyReload, logger)
	}

	// Warm the cache so the first federated login does not pay for the fetch.
	go func() {
		ring, err := eng.refreshKeys(ctx)
		if err != nil {
			logger.Error("authd: initial key fetch failed", "error", err)
			return
		}
		logger.Info("authd: key cache warmed", "keys", ring.Len(), "issuer", ring.Issuer())
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if !eng.ready(ctx) {
			http.Error(w, "no signing keys", http.StatusServiceUnavailable)
			return
		}
		if store != nil {
			if err := store.Health(ctx); err != nil {
				http.Error(w, "policy store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	logger.Info("authd: serving", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	if shutdownErr := eng.shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	logger.Info("authd: stopped")
	return err
}

// reloadPolicy loads the access lists now and then every interval.
func reloadPolicy(ctx context.Context, store *policy.RedisStore, holder *policy.Holder, m *metrics.Collectors, interval time.Duration, logger *slog.Logger) {
	load := func() {
		lists, err := store.Load(ctx)
		if err != nil {
			logger.Log(ctx, sserr.LogLevelOf(err), "authd: cannot reload access lists", "error", err)
			return
		}
		holder.Store(lists)
		m.SetPolicyEntries(lists.Counts())
	}
	load()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			load()
		}
	}
}
