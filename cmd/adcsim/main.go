// Command adcsim is the ADC exam simulator: a spoken patient interview with
// an LLM playing the patient, followed by an assessment against the
// examiner's criteria.
//
//	adcsim run        one session in the terminal
//	adcsim serve      browser front end on server.listen_addr
//	adcsim providers  list the backends this build ships
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/SalahAli20/ADCAI/internal/app"
	"github.com/SalahAli20/ADCAI/internal/config"
	"github.com/SalahAli20/ADCAI/internal/observe"
	"github.com/SalahAli20/ADCAI/internal/resilience"
)

// version is stamped by the release build.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "adcsim",
		Short:         "Practise the ADC clinical exam against a simulated patient",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "path to a YAML configuration file (built-in defaults when empty)")
	root.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "settings file loaded into the environment before the config")

	root.AddCommand(newRunCmd(f), newServeCmd(f), newProvidersCmd())
	return root
}

// ── Runtime ────────────────────────────────────────────────────────────────────

// runtime is everything a subcommand needs once configuration is loaded.
type runtime struct {
	cfg   *config.Config
	level *slog.LevelVar
	app   *app.App

	// telemetry is nil when telemetry is disabled.
	telemetry *observe.Telemetry

	closers []func(context.Context) error
}

// setup loads settings and configuration, installs the logger and telemetry,
// and builds the providers and the application. Sessions started through the
// application derive from ctx.
func setup(ctx context.Context, f *rootFlags) (*runtime, error) {
	// A missing settings file is normal; the key may already be exported.
	if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", f.envFile, err)
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found (omit --config to use the defaults)", f.configPath)
		}
		return nil, err
	}

	rt := &runtime{cfg: cfg, level: new(slog.LevelVar)}
	rt.level.Set(cfg.Server.LogLevel.Level())
	logger, logFile := newLogger(cfg.Server, rt.level)
	slog.SetDefault(logger)
	if logFile != nil {
		rt.closers = append(rt.closers, func(context.Context) error { return logFile.Close() })
	}

	slog.Info("adcsim starting",
		"version", version,
		"config", f.configPath,
		"log_level", cfg.Server.LogLevel,
		"llm", cfg.Providers.LLM.Name,
		"model", cfg.Providers.LLM.Model,
		"stt", cfg.Providers.STT.Name,
		"tts", cfg.Providers.TTS.Name,
	)

	if cfg.Telemetry.Enabled {
		tel, err := observe.Setup(ctx, observe.TelemetryConfig{Version: version})
		if err != nil {
			rt.close(context.Background())
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		rt.telemetry = tel
		rt.closers = append(rt.closers, tel.Shutdown)
	}

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg, app.NewPlayer(cfg.Audio))
	providers, err := app.BuildProviders(cfg, reg, resilience.CircuitBreakerConfig{Name: "stt"})
	if err != nil {
		rt.close(context.Background())
		return nil, err
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		_ = providers.Close()
		rt.close(context.Background())
		return nil, err
	}
	rt.app = application
	return rt, nil
}

// close shuts the application down, then telemetry and the log file.
func (rt *runtime) close(ctx context.Context) {
	if rt.app != nil {
		if err := rt.app.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			slog.Warn("close error", "err", err)
		}
	}
}

// shutdownContext bounds teardown by the configured timeout. It is detached
// from ctx, which is usually already cancelled by the time it is needed.
func (rt *runtime) shutdownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), rt.cfg.Server.ShutdownTimeout)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger writes text logs to stderr and, when a log file is configured, to
// a rotating file as well. The returned closer is nil without a log file.
func newLogger(cfg config.ServerConfig, level *slog.LevelVar) (*slog.Logger, io.Closer) {
	var (
		w    io.Writer = os.Stderr
		file *lumberjack.Logger
	)
	if cfg.LogFile.Path != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
			Compress:   cfg.LogFile.Compress,
		}
		w = io.MultiWriter(os.Stderr, file)
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	if file == nil {
		return logger, nil
	}
	return logger, file
}
