package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"modelapi/internal/config"
	"modelapi/internal/evaluator"
	"modelapi/internal/generation"
	"modelapi/internal/httpapi"
	"modelapi/internal/manager"
	"modelapi/internal/prompt"
	"modelapi/internal/service"
	"modelapi/internal/settings"
	"modelapi/internal/stopsignal"
	"modelapi/internal/tunnel"
)

const shutdownTimeout = 10 * time.Second

// errLoadFailed ends the process after a failed load when exit_on_load_failure is set.
var errLoadFailed = errors.New("model load failed")

func newServeCmd(opts *rootOptions) *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, flags)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			return serve(cmd.Context(), cfg, logger)
		},
	}
	flags.register(cmd)
	return cmd
}

// app is the wired service graph.
type app struct {
	mgr     *manager.Manager
	signal  *stopsignal.Signal
	handler http.Handler
}

// build wires the service graph. onLoadFailure runs after every failed load.
func build(cfg config.Config, logger zerolog.Logger, onLoadFailure func(string, error)) (*app, error) {
	loader, disc, err := buildBackend(cfg)
	if err != nil {
		return nil, err
	}
	mgr := manager.New(manager.Config{
		Loader:        loader,
		Settings:      settings.New(cfg.SettingsFiles, cfg.SettingsUserFile),
		Discovery:     disc,
		Args:          cfg.ModelArgs,
		OnLoadFailure: onLoadFailure,
	})
	sig := stopsignal.New()
	renderer := prompt.New(cfg.TemplatesDir)
	genLog := logger.With().Str("component", "generation").Logger()
	evalLog := logger.With().Str("component", "evaluator").Logger()
	svc := service.New(service.Config{
		Manager: mgr,
		Runner: generation.New(generation.Config{
			Signal:   sig,
			Renderer: renderer,
			Timeout:  cfg.GenerationTimeout.Duration,
			Logger:   &genLog,
		}),
		Evaluator: evaluator.New(evaluator.Config{Signal: sig, Renderer: renderer, Logger: &evalLog}),
	})

	httpapi.SetLogger(logger.With().Str("component", "http").Logger())
	httpapi.SetDefaultRequestLogLevel(cfg.RequestLog)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetAdmission(cfg.Concurrency(), cfg.AdmissionWait.Duration)
	httpapi.SetCORSOptions(cfg.CORS.AllowedOrigins)
	return &app{mgr: mgr, signal: sig, handler: httpapi.NewMux(svc)}, nil
}

// serve runs the API until ctx ends, a signal arrives or a load fails with
// exit_on_load_failure set. In-flight requests are given shutdownTimeout to
// finish after the stop signal fires.
func serve(parent context.Context, cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, fail := context.WithCancelCause(ctx)
	defer fail(nil)

	onLoadFailure := func(name string, err error) {
		if cfg.ExitOnFailure() {
			fail(fmt.Errorf("%w: %s: %v", errLoadFailed, name, err))
		}
	}
	a, err := build(cfg, logger, onLoadFailure)
	if err != nil {
		return err
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: a.handler, ReadHeaderTimeout: 10 * time.Second}
	logger.Info().Str("addr", ln.Addr().String()).Str("backend", cfg.Backend).Str("models_dir", cfg.ModelsDir).Msg("server event=listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Int("inflight", a.signal.Inflight()).Uint64("stops", a.signal.Stops()).Msg("server event=shutdown")
		a.signal.Stop()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		cancelBase()
		if _, uerr := a.mgr.Unload(); uerr != nil {
			logger.Warn().Err(uerr).Msg("server event=unload_failed")
		}
		if err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	if cfg.Model != "" {
		g.Go(func() error {
			// failures reach the caller through onLoadFailure
			if _, err := a.mgr.Load(gctx, cfg.Model, nil); err != nil {
				logger.Error().Err(err).Str("model", cfg.Model).Msg("server event=startup_load_failed")
			}
			return nil
		})
	}
	if cfg.Share {
		port := ln.Addr().(*net.TCPAddr).Port
		g.Go(func() error {
			t := tunnel.New(tunnel.Config{Binary: cfg.CloudflaredBin, TunnelID: cfg.TunnelID, Hostname: cfg.TunnelHostname})
			err := t.Start(gctx, port, func(url string) {
				logger.Info().Str("url", url).Msg("tunnel event=public_url")
			})
			if err != nil {
				logger.Error().Err(err).Msg("tunnel event=gave_up")
			}
			return nil
		})
	}

	err = g.Wait()
	if cause := context.Cause(ctx); errors.Is(cause, errLoadFailed) {
		return cause
	}
	return err
}
