package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/StricklySoft/bedrock-auth/pkg/auth"
	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
	"github.com/StricklySoft/bedrock-auth/pkg/login"
	"github.com/StricklySoft/bedrock-auth/pkg/metrics"
	"github.com/StricklySoft/bedrock-auth/pkg/policy"
	"github.com/StricklySoft/bedrock-auth/pkg/scheduler"
)

var errLoopStopped = sserr.New(sserr.CodeUnavailable, "authd: main loop stopped")

// engine wires the main loop, the worker pool and the key provider
// together. The serve command only uses it to keep the key cache warm and
// to report readiness; login handlers are built on demand by
// [engine.loginHandler], which only the verify command calls.
type engine struct {
	loop       *scheduler.Loop
	pool       *scheduler.Pool
	provider   *auth.KeyProvider
	validator  auth.ChainValidator
	policy     *policy.Holder
	collectors *metrics.Collectors
	logger     *slog.Logger
	loopDone   chan error
}

// startEngine starts the main loop and the worker pool. Both stop when ctx
// is cancelled or [engine.shutdown] is called.

func startEngine(ctx context.Context, cfg ServerConfig, collectors *metrics.Collectors, logger *slog.Logger) (*engine, error) {
	rootKey, err := cfg.Keys.RootKeyDER()
	if err != nil {
		return nil, err
	}

	loop := scheduler.NewLoop(0, logger)
	pool := scheduler.NewPool(loop, scheduler.WithWorkers(cfg.Workers), scheduler.WithLogger(logger))
	provider := auth.NewKeyProvider(cfg.Keys, pool,
		auth.WithHTTPClient(&http.Client{Timeout: cfg.Keys.HTTPTimeout}),
		auth.WithLogger(logger),
		auth.WithFetchMetrics(collectors),
	)

	e := &engine{
		loop:       loop,
		pool:       pool,
		provider:   provider,
		validator:  auth.ChainValidator{Audience: cfg.Keys.Audience, RootKey: rootKey},
		policy:     policy.NewHolder(nil),
		collectors: collectors,
		logger:     logger,
		loopDone:   make(chan error, 1),
	}
	go func() { e.loopDone <- loop.Run(ctx) }()
	if err := pool.Start(context.WithoutCancel(ctx)); err != nil {
		loop.Stop()
		return nil, err
	}
	return e, nil
}

// loginHandler builds a login handler sharing the engine's loop, pool, key
// provider and access lists. It must be called after [startEngine] and the
// handler must only be used on the engine's loop.
func (e *engine) loginHandler(cfg login.Config) (*login.Handler, error) {
	return login.NewHandler(cfg, e.validator, e.provider, e.pool,
		login.WithTimer(e.loop),
		login.WithAccessPolicy(e.policy),
		login.WithMetrics(e.collectors),
		login.WithLogger(e.logger),
	)
}

// refreshKeys fetches the key set and waits for the outcome.
func (e *engine) refreshKeys(ctx context.Context) (*auth.KeyRing, error) {
	type result struct {
		ring *auth.KeyRing
		err  error
	}
	ch := make(chan result, 1)
	posted := e.loop.Post(func() {
		e.provider.Refresh().OnCompletion(
			func(r *auth.KeyRing) { ch <- result{ring: r} },
			func(err error) { ch <- result{err: err} },
		)
	})
	if !posted {
		return nil, errLoopStopped
	}
	select {
	case r := <-ch:
		return r.ring, r.err
	case <-e.loop.Done():
		return nil, errLoopStopped
	case <-ctx.Done():
		return nil, sserr.Wrap(ctx.Err(), sserr.CodeTimeout, "authd: waiting for key refresh")
	}
}

// ready reports whether a key ring has been fetched.
func (e *engine) ready(ctx context.Context) bool {
	var ok bool
	if err := e.loop.Do(ctx, func() { ok = e.provider.Ring() != nil }); err != nil {
		return false
	}
	return ok
}

// shutdown drains the pool within ctx and then stops the loop.
func (e *engine) shutdown(ctx context.Context) error {
	err := e.pool.Shutdown(ctx)
	e.loop.Stop()
	<-e.loopDone
	return err
}
