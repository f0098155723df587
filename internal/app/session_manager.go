package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SalahAli20/ADCAI/internal/exam"
	"github.com/SalahAli20/ADCAI/internal/observe"
)

var (
	// ErrSessionActive is returned by Start while another session runs.
	ErrSessionActive = errors.New("app: a session is already active")

	// ErrNoActiveSession is returned by Stop and Wait when nothing runs.
	ErrNoActiveSession = errors.New("app: no active session")
)

// SessionInfo holds metadata about a session.
type SessionInfo struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Criteria  string    `json:"criteria"`
	Scenario  string    `json:"scenario"`
}

// Outcome is what a finished session left behind.
type Outcome struct {
	Info   SessionInfo  `json:"info"`
	Result *exam.Result `json:"result,omitempty"`
	Err    error        `json:"-"`
}

// SessionFactory builds the exam session for one run. sessionID is the id
// events for the run are published under.
type SessionFactory func(sessionID string, cfg exam.SessionConfig) (run func(ctx context.Context) (*exam.Result, error), cleanup func(), err error)

// SessionManager runs at most one exam session at a time. All exported
// methods are safe for concurrent use.
type SessionManager struct {
	base    context.Context
	factory SessionFactory

	mu     sync.Mutex
	active *activeSession
	last   *Outcome
}

type activeSession struct {
	info   SessionInfo
	cancel context.CancelFunc
	done   chan struct{}
	out    Outcome
}

// NewSessionManager creates a manager whose sessions derive from base, so
// that cancelling base interrupts the running session. Sessions are not tied
// to the context passed to Start.
func NewSessionManager(base context.Context, factory SessionFactory) *SessionManager {
	return &SessionManager{base: base, factory: factory}
}

// Start launches a session in the background and returns immediately.
// Blank criteria yield [exam.ErrNoCriteria] before anything is started.
func (sm *SessionManager) Start(criteria, scenario string) (SessionInfo, error) {
	cfg := exam.NewSessionConfig(criteria, scenario)
	if err := cfg.Validate(); err != nil {
		return SessionInfo{}, err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active != nil {
		return SessionInfo{}, fmt.Errorf("%w (id=%s)", ErrSessionActive, sm.active.info.ID)
	}

	info := SessionInfo{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Criteria:  criteria,
		Scenario:  scenario,
	}
	run, cleanup, err := sm.factory(info.ID, cfg)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("app: prepare session: %w", err)
	}

	ctx, cancel := context.WithCancel(observe.WithSession(sm.base, info.ID))
	as := &activeSession{info: info, cancel: cancel, done: make(chan struct{})}
	sm.active = as

	go func() {
		defer close(as.done)
		defer cancel()
		res, err := run(ctx)
		if cleanup != nil {
			cleanup()
		}

		sm.mu.Lock()
		as.out = Outcome{Info: info, Result: res, Err: err}
		sm.last = &as.out
		sm.active = nil
		sm.mu.Unlock()

		if err != nil {
			slog.Warn("session ended with error", "session_id", info.ID, "err", err)
		}
	}()

	slog.Info("session started", "session_id", info.ID)
	return info, nil
}

// Stop interrupts the active session. The session still produces its
// assessment; use Wait to block until it has.
func (sm *SessionManager) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.active == nil {
		return ErrNoActiveSession
	}
	sm.active.cancel()
	slog.Info("session stop requested", "session_id", sm.active.info.ID)
	return nil
}

// Wait blocks until the active session finishes or ctx is done.
func (sm *SessionManager) Wait(ctx context.Context) (Outcome, error) {
	sm.mu.Lock()
	as := sm.active
	sm.mu.Unlock()
	if as == nil {
		return Outcome{}, ErrNoActiveSession
	}
	select {
	case <-as.done:
		return as.out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// IsActive reports whether a session is running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active != nil
}

// Info returns the active session's metadata.
func (sm *SessionManager) Info() (SessionInfo, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.active == nil {
		return SessionInfo{}, false
	}
	return sm.active.info, true
}

// Last returns the outcome of the most recently finished session.
func (sm *SessionManager) Last() (Outcome, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.last == nil {
		return Outcome{}, false
	}
	return *sm.last, true
}

// Shutdown stops any active session and waits for it to finish.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	if err := sm.Stop(); errors.Is(err, ErrNoActiveSession) {
		return nil
	}
	_, err := sm.Wait(ctx)
	if errors.Is(err, ErrNoActiveSession) {
		return nil
	}
	return err
}
