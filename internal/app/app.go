// Package app wires the exam simulator's subsystems into a running process.
//
// An [App] owns the providers, the event bus and the [SessionManager]. The
// terminal command runs one session in the foreground with
// [App.RunSession]; the web server starts sessions in the background through
// [App.Sessions].
//
// For testing, inject doubles through [Providers] and the functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SalahAli20/ADCAI/internal/config"
	"github.com/SalahAli20/ADCAI/internal/events"
	"github.com/SalahAli20/ADCAI/internal/exam"
	"github.com/SalahAli20/ADCAI/internal/observe"
)

// App owns every subsystem lifetime.
type App struct {
	cfg       *config.Config
	providers *Providers
	bus       *events.Bus
	metrics   *observe.Metrics
	clock     exam.Clock
	sessions  *SessionManager

	ownsBus  bool
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithBus publishes session events on b instead of a private bus.
func WithBus(b *events.Bus) Option {
	return func(a *App) { a.bus = b }
}

// WithMetrics records on m instead of the default instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithClock sets the clock sessions measure their duration with.
func WithClock(c exam.Clock) Option {
	return func(a *App) { a.clock = c }
}

// New creates an App. Sessions started through [App.Sessions] derive from
// ctx; cancelling it interrupts them.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.LLM == nil || providers.STT == nil || providers.TTS == nil || providers.NewSource == nil {
		return nil, errors.New("app: llm, stt, tts and audio source must all be configured")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.bus == nil {
		a.bus = events.NewBus()
		a.ownsBus = true
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.sessions = NewSessionManager(ctx, func(id string, sc exam.SessionConfig) (func(context.Context) (*exam.Result, error), func(), error) {
		return a.prepare(id, sc)
	})
	return a, nil
}

// Bus returns the event bus sessions publish on.
func (a *App) Bus() *events.Bus { return a.bus }

// Sessions returns the background session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Providers returns the configured backends.
func (a *App) Providers() *Providers { return a.providers }

// RunSession runs one session in the foreground, publishing its events under
// sessionID. Subscribe to the bus before calling to see them. Blank criteria
// are reported on the bus and returned as [exam.ErrNoCriteria].
func (a *App) RunSession(ctx context.Context, sessionID, criteria, scenario string) (*exam.Result, error) {
	run, cleanup, err := a.prepare(sessionID, exam.NewSessionConfig(criteria, scenario))
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return run(observe.WithSession(ctx, sessionID))
}

// prepare opens the capture device and builds a session publishing on the
// bus. cleanup closes the device.
func (a *App) prepare(sessionID string, sc exam.SessionConfig) (func(context.Context) (*exam.Result, error), func(), error) {
	sc.Model = a.cfg.Providers.LLM.Model

	src, err := a.providers.NewSource()
	if err != nil {
		return nil, nil, fmt.Errorf("app: open capture device: %w", err)
	}
	cleanup := func() {
		if err := src.Close(); err != nil {
			slog.Warn("capture device close error", "session_id", sessionID, "err", err)
		}
	}

	lopts := []exam.ListenerOption{
		exam.WithWaitTimeout(sc.ListenTimeout),
		exam.WithRecognizeTimeout(sc.RecognizeTimeout),
		exam.WithListenerMetrics(a.metrics),
	}
	if a.cfg.Audio.CalibrateOnce {
		lopts = append(lopts, exam.WithCalibrateOnce())
	}
	ears, err := exam.NewListener(src, a.providers.STT, lopts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	sopts := []exam.Option{
		exam.WithReporter(a.bus.Reporter(sessionID)),
		exam.WithMetrics(a.metrics),
	}
	if a.clock != nil {
		sopts = append(sopts, exam.WithClock(a.clock))
	}
	sess, err := exam.NewSession(sc, ears, a.providers.LLM, a.providers.TTS, sopts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return sess.Run, cleanup, nil
}

// Shutdown interrupts the active session, waits for its assessment, and
// releases providers and the bus.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if err := a.sessions.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: stop session: %w", err))
		}
		if err := a.providers.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close providers: %w", err))
		}
		if a.ownsBus {
			if err := a.bus.Close(); err != nil {
				errs = append(errs, fmt.Errorf("app: close bus: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}
