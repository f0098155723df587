package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/SalahAli20/ADCAI/internal/app"
	"github.com/SalahAli20/ADCAI/internal/config"
	"github.com/SalahAli20/ADCAI/internal/health"
	"github.com/SalahAli20/ADCAI/internal/web"
)

func newServeCmd(f *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser front end",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "listen address (overrides server.listen_addr)")
	return cmd
}

func serve(parent context.Context, f *rootFlags, addr string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, f)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := rt.shutdownContext(ctx)
		defer cancel()
		rt.close(sctx)
	}()
	if addr == "" {
		addr = rt.cfg.Server.ListenAddr
	}

	if f.configPath != "" {
		w, err := config.NewWatcher(f.configPath, rt.onConfigChange)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	providers := rt.app.Providers()
	checks := []health.Checker{
		health.BreakerChecker("stt", providers.STT.Breaker()),
	}
	if capture := app.CaptureCommand(rt.cfg.Audio); len(capture) > 0 {
		checks = append(checks, health.CommandChecker("capture", capture[0]))
	}
	opts := []web.Option{web.WithHealth(health.New(checks...))}
	if rt.telemetry != nil {
		opts = append(opts, web.WithMetricsHandler(rt.telemetry.Handler()))
	}
	srv, err := web.New(rt.app.Sessions(), rt.app.Bus(), opts...)
	if err != nil {
		return err
	}

	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The hub outlives the signal so the interrupted session's assessment
	// still reaches connected browsers. It ends when the bus closes.
	hubCtx, stopHub := context.WithCancel(context.WithoutCancel(ctx))
	defer stopHub()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", addr)
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.Run(hubCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")
		sctx, cancel := rt.shutdownContext(gctx)
		defer cancel()
		defer stopHub()
		// Finish the session first; its last events go out over open sockets.
		appErr := rt.app.Shutdown(sctx)
		return errors.Join(appErr, hs.Shutdown(sctx))
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("serve error", "err", err)
		return err
	}
	slog.Info("goodbye")
	return nil
}

// onConfigChange applies what can change at runtime and flags the rest.
func (rt *runtime) onConfigChange(_, _ *config.Config, diff config.ConfigDiff) {
	if diff.LogLevelChanged {
		rt.level.Set(diff.NewLogLevel.Level())
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if len(diff.RestartRequired) > 0 {
		slog.Warn("config changes take effect after a restart", "fields", diff.RestartRequired)
	}
}
