// Package web serves the browser front end of the exam simulator: the start
// form, a small JSON API to start and interrupt the session, and a websocket
// streaming the session's events as they happen.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/SalahAli20/ADCAI/internal/app"
	"github.com/SalahAli20/ADCAI/internal/events"
	"github.com/SalahAli20/ADCAI/internal/exam"
	"github.com/SalahAli20/ADCAI/internal/health"
	"github.com/SalahAli20/ADCAI/internal/observe"
)

//go:embed templates/index.html
var templates embed.FS

// maxBodyBytes caps the start request body.
const maxBodyBytes = 1 << 20

// Sessions is the session control surface the server drives.
// [*app.SessionManager] implements it.
type Sessions interface {
	Start(criteria, scenario string) (app.SessionInfo, error)
	Stop() error
	Info() (app.SessionInfo, bool)
	Last() (app.Outcome, bool)
}

// Server routes HTTP requests. Create it with [New] and call Run once so the
// websocket hub receives events.
type Server struct {
	sessions Sessions
	bus      *events.Bus
	hub      *hub
	page     *template.Template
	mux      *http.ServeMux
	health   *health.Handler
	metrics  *observe.Metrics
	scrape   http.Handler
	title    string

	// ready is closed once Run has subscribed to the bus.
	ready chan struct{}
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records HTTP metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.scrape = h }
}

// New builds the server.
func New(sessions Sessions, bus *events.Bus, opts ...Option) (*Server, error) {
	if sessions == nil {
		return nil, errors.New("web: sessions must not be nil")
	}
	if bus == nil {
		return nil, errors.New("web: bus must not be nil")
	}
	page, err := template.ParseFS(templates, "templates/index.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		sessions: sessions,
		bus:      bus,
		hub:      newHub(),
		page:     page,
		mux:      http.NewServeMux(),
		title:    "ADC Exam Simulation",
		ready:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /api/sessions", s.handleStart)
	s.mux.HandleFunc("GET /api/sessions/current", s.handleCurrent)
	s.mux.HandleFunc("DELETE /api/sessions/current", s.handleStop)
	s.mux.HandleFunc("GET /api/sessions/last", s.handleLast)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.health.Register(s.mux)
	if s.scrape != nil {
		s.mux.Handle("GET /metrics", s.scrape)
	}
	return s, nil
}

// Run feeds bus events to websocket clients until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	evs, err := s.bus.Subscribe(ctx, "")
	if err != nil {
		return err
	}
	close(s.ready)
	s.hub.run(ctx, evs)
	return nil
}

// Handler returns the routed handler wrapped in the metrics middleware.
func (s *Server) Handler() http.Handler {
	return observe.Middleware(s.metrics)(s.mux)
}

// ─── Page ─────────────────────────────────────────────────────────────────────

type pageData struct {
	Title    string
	Criteria string
	Scenario string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := pageData{Title: s.title, Criteria: exam.DefaultCriteria, Scenario: exam.DefaultScenario}
	if err := s.page.Execute(w, data); err != nil {
		observe.Logger(r.Context()).Error("render index", "err", err)
	}
}

// ─── API ──────────────────────────────────────────────────────────────────────

type startRequest struct {
	Criteria string `json:"criteria"`
	Scenario string `json:"scenario"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type outcomeResponse struct {
	app.Outcome
	Error string `json:"error,omitempty"`
}

// handleStart accepts a JSON body or a urlencoded form.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req startRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid form: " + err.Error()})
			return
		}
		req.Criteria = r.PostFormValue("criteria")
		req.Scenario = r.PostFormValue("scenario")
	}

	info, err := s.sessions.Start(req.Criteria, req.Scenario)
	switch {
	case errors.Is(err, exam.ErrNoCriteria):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: exam.MsgNoCriteria})
	case errors.Is(err, app.ErrSessionActive):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "a simulation is already running"})
	case err != nil:
		observe.Logger(r.Context()).Error("start session", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusCreated, info)
	}
}

func (s *Server) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	info, ok := s.sessions.Info()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no simulation is running"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.sessions.Stop(); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no simulation is running"})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleLast(w http.ResponseWriter, _ *http.Request) {
	out, ok := s.sessions.Last()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no simulation has finished yet"})
		return
	}
	resp := outcomeResponse{Outcome: out}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Websocket ────────────────────────────────────────────────────────────────

// wireEvent is an event plus its rendered display line.
type wireEvent struct {
	events.Event
	Line string `json:"line,omitempty"`
}

// handleWS streams events for the session named by the "session" query
// parameter (all sessions when absent). The stream ends after the session's
// done event or when the client goes away. When the last client following
// the running session goes away first, the session is interrupted.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	session := r.URL.Query().Get("session")
	log := observe.Logger(r.Context()).With("session_id", session)

	// The client never sends anything; CloseRead notices it leaving.
	ctx := conn.CloseRead(r.Context())

	c := s.hub.join(session)
	defer func() {
		if s.hub.leave(c) {
			s.interruptOrphaned(log, session)
		}
	}()

	send := func(ev events.Event) (more bool, err error) {
		line, _ := events.Line(ev)
		if err := wsjson.Write(ctx, conn, wireEvent{Event: ev, Line: line}); err != nil {
			log.Debug("websocket write failed", "err", err)
			return false, err
		}
		if session != "" && ev.Kind == exam.NoticeDone {
			conn.Close(websocket.StatusNormalClosure, "session finished")
			return false, nil
		}
		return true, nil
	}

	if session == "" {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-c.ch:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "stream closed")
					return
				}
				if more, _ := send(ev); !more {
					return
				}
			}
		}
	}

	for {
		evs, ok := s.hub.pending(c)
		if !ok {
			conn.Close(websocket.StatusGoingAway, "stream closed")
			return
		}
		for _, ev := range evs {
			if more, _ := send(ev); !more {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
	}
}

// interruptOrphaned stops session if it is still the running one.
func (s *Server) interruptOrphaned(log *slog.Logger, session string) {
	info, ok := s.sessions.Info()
	if !ok || info.ID != session {
		return
	}
	if err := s.sessions.Stop(); err != nil {
		log.Debug("interrupt on disconnect", "err", err)
		return
	}
	log.Info("last viewer disconnected, interrupting session")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("web: encode response", "err", err)
	}
}
