package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/SalahAli20/ADCAI/internal/exam"
	"github.com/SalahAli20/ADCAI/internal/observe"
)

// blockingFactory returns sessions that run until their context is
// cancelled and then report an interrupted result.
func blockingFactory(prepared *atomic.Int32, cleaned *atomic.Int32) SessionFactory {
	return func(id string, cfg exam.SessionConfig) (func(context.Context) (*exam.Result, error), func(), error) {
		prepared.Add(1)
		run := func(ctx context.Context) (*exam.Result, error) {
			<-ctx.Done()
			return &exam.Result{Interrupted: true, Assessment: &exam.Assessment{Feedback: "partial"}}, nil
		}
		return run, func() { cleaned.Add(1) }, nil
	}
}

func waitOutcome(t *testing.T, sm *SessionManager) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := sm.Wait(ctx)
	if errors.Is(err, ErrNoActiveSession) {
		// Already finished.
		last, ok := sm.Last()
		if !ok {
			t.Fatal("no active session and no recorded outcome")
		}
		return last
	}
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return out
}

func TestSessionManager_StartRejectsBlankCriteria(t *testing.T) {
	t.Parallel()
	var prepared, cleaned atomic.Int32
	sm := NewSessionManager(context.Background(), blockingFactory(&prepared, &cleaned))

	if _, err := sm.Start(" \n\t", "scenario"); !errors.Is(err, exam.ErrNoCriteria) {
		t.Fatalf("got %v, want ErrNoCriteria", err)
	}
	if prepared.Load() != 0 {
		t.Error("factory called for blank criteria")
	}
	if sm.IsActive() {
		t.Error("IsActive() = true after rejected start")
	}
}

func TestSessionManager_OneSessionAtATime(t *testing.T) {
	t.Parallel()
	var prepared, cleaned atomic.Int32
	sm := NewSessionManager(context.Background(), blockingFactory(&prepared, &cleaned))

	info, err := sm.Start("criteria", "scenario")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := uuid.Parse(info.ID); err != nil {
		t.Errorf("session id %q is not a UUID: %v", info.ID, err)
	}
	if got, ok := sm.Info(); !ok || got.ID != info.ID {
		t.Errorf("Info() = %+v, %v", got, ok)
	}

	if _, err := sm.Start("criteria", "scenario"); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Start: got %v, want ErrSessionActive", err)
	}
	if prepared.Load() != 1 {
		t.Errorf("factory called %d times, want 1", prepared.Load())
	}

	if err := sm.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	out := waitOutcome(t, sm)
	if out.Result == nil || !out.Result.Interrupted {
		t.Errorf("outcome = %+v, want interrupted result", out)
	}
	if cleaned.Load() != 1 {
		t.Errorf("cleanup ran %d times, want 1", cleaned.Load())
	}
	if sm.IsActive() {
		t.Error("IsActive() = true after the session finished")
	}

	// A new session can start once the previous one is done.
	if _, err := sm.Start("criteria", "scenario"); err != nil {
		t.Fatalf("Start after finish: %v", err)
	}
	_ = sm.Shutdown(context.Background())
}

func TestSessionManager_StopWithoutSession(t *testing.T) {
	t.Parallel()
	var prepared, cleaned atomic.Int32
	sm := NewSessionManager(context.Background(), blockingFactory(&prepared, &cleaned))

	if err := sm.Stop(); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Stop: got %v, want ErrNoActiveSession", err)
	}
	if _, err := sm.Wait(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Wait: got %v, want ErrNoActiveSession", err)
	}
	if err := sm.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown with nothing running: %v", err)
	}
	if _, ok := sm.Last(); ok {
		t.Error("Last() reported an outcome before any session ran")
	}
}

func TestSessionManager_BaseContextInterrupts(t *testing.T) {
	t.Parallel()
	var prepared, cleaned atomic.Int32
	base, cancel := context.WithCancel(context.Background())
	sm := NewSessionManager(base, blockingFactory(&prepared, &cleaned))

	if _, err := sm.Start("criteria", "scenario"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	out := waitOutcome(t, sm)
	if out.Result == nil || !out.Result.Interrupted {
		t.Errorf("outcome = %+v, want interrupted", out)
	}
	last, ok := sm.Last()
	if !ok || last.Info.ID != out.Info.ID {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}

func TestSessionManager_FactoryError(t *testing.T) {
	t.Parallel()
	boom := errors.New("no microphone")
	sm := NewSessionManager(context.Background(), func(string, exam.SessionConfig) (func(context.Context) (*exam.Result, error), func(), error) {
		return nil, nil, boom
	})
	if _, err := sm.Start("criteria", "scenario"); !errors.Is(err, boom) {
		t.Fatalf("got %v, want factory error", err)
	}
	if sm.IsActive() {
		t.Error("IsActive() = true after a failed start")
	}
}

func TestSessionManager_SessionContextCarriesID(t *testing.T) {
	t.Parallel()
	gotID := make(chan string, 1)
	sm := NewSessionManager(context.Background(), func(id string, _ exam.SessionConfig) (func(context.Context) (*exam.Result, error), func(), error) {
		return func(ctx context.Context) (*exam.Result, error) {
			if observe.SessionID(ctx) != id {
				id = "ctx:" + observe.SessionID(ctx)
			}
			gotID <- id
			return &exam.Result{}, nil
		}, nil, nil
	})
	info, err := sm.Start("criteria", "scenario")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case id := <-gotID:
		if id != info.ID {
			t.Errorf("factory id = %q, want %q", id, info.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not run")
	}
}
