package exam

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/SalahAli20/ADCAI/internal/observe"
	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/llm"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt"
	"github.com/SalahAli20/ADCAI/pkg/provider/tts"
)

// Transcriber is the capture and recognition half of a turn. [*Listener] is
// the production implementation.
type Transcriber interface {
	Capture(ctx context.Context) (audio.Utterance, error)
	Recognize(ctx context.Context, utt audio.Utterance) (string, error)
}

// Assessment is the graded outcome of a session.
type Assessment struct {
	Feedback string `json:"feedback"`
	Prompt   string `json:"prompt"`
	Turns    int    `json:"turns"`
}

// Result summarises a finished session.
type Result struct {
	Transcript  []Turn        `json:"transcript"`
	Assessment  *Assessment   `json:"assessment,omitempty"`
	Interrupted bool          `json:"interrupted"`
	Iterations  int           `json:"iterations"`
	Elapsed     time.Duration `json:"elapsed"`

	// Failure is the kind of the error that ended the session early, or
	// FailureInterrupted, or FailureNone.
	Failure FailureKind `json:"-"`
}

// Outcome is the metrics label for r: "finished", "interrupted" or "failed".
func (r *Result) Outcome() string {
	switch {
	case r.Assessment == nil:
		return "failed"
	case r.Interrupted:
		return "interrupted"
	default:
		return "finished"
	}
}

// Option configures a [Session].
type Option func(*Session)

// WithReporter sets the notice sink. Defaults to [Discard].
func WithReporter(r Reporter) Option {
	return func(s *Session) { s.reporter = r }
}

// WithClock overrides the clock used for the duration budget.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithMetrics records session metrics on m instead of the default instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is one exam run. Create it with [NewSession] and call Run once.
type Session struct {
	cfg        SessionConfig
	ears       Transcriber
	gen        *Generator
	speaker    tts.Speaker
	reporter   Reporter
	clock      Clock
	metrics    *observe.Metrics
	transcript Transcript

	ran   atomic.Bool
	state atomic.Int32
}

// NewSession wires a session. The configuration is validated by Run, not
// here, so that a blank criteria field is reported through the Reporter.
func NewSession(cfg SessionConfig, ears Transcriber, model llm.Provider, speaker tts.Speaker, opts ...Option) (*Session, error) {
	if ears == nil {
		return nil, errors.New("exam: transcriber must not be nil")
	}
	if speaker == nil {
		return nil, errors.New("exam: speaker must not be nil")
	}
	s := &Session{
		cfg:      cfg,
		ears:     ears,
		speaker:  speaker,
		reporter: Discard,
		clock:    systemClock{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	gen, err := NewGenerator(model, cfg.GenerateTimeout, s.metrics)
	if err != nil {
		return nil, err
	}
	s.gen = gen
	return s, nil
}

// State returns the loop's current state. Safe to call from any goroutine.
func (s *Session) State() State { return State(s.state.Load()) }

// Transcript returns a snapshot of the turns recorded so far.
func (s *Session) Transcript() []Turn { return s.transcript.Turns() }

// Run executes the conversation and the assessment. Cancelling ctx
// interrupts the conversation; the assessment still runs on the partial
// transcript. The returned Result is nil only when the session never
// started.
//
// Generation, synthesis and capture-device failures end the session without
// an assessment; the error wraps [ErrGeneration], [ErrSynthesis] or
// [ErrCapture].
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	defer s.report(NoticeDone, "")
	log := observe.Logger(ctx)

	if err := s.cfg.Validate(); err != nil {
		s.report(NoticeError, MsgNoCriteria)
		s.metrics.RecordFailure(ctx, FailureNoCriteria.String())
		return nil, err
	}

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	start := s.clock.Now()
	res := &Result{}
	finish := func(err error) (*Result, error) {
		s.setState(ctx, StateFinished)
		res.Transcript = s.transcript.Turns()
		res.Elapsed = s.clock.Now().Sub(start)
		s.metrics.RecordSession(context.WithoutCancel(ctx), res.Outcome())
		log.Info("exam session ended",
			"outcome", res.Outcome(),
			"turns", len(res.Transcript),
			"iterations", res.Iterations,
			"elapsed", res.Elapsed,
		)
		return res, err
	}

	s.report(NoticeInfo, MsgStarted)
	log.Info("exam session started", "duration", s.cfg.Duration, "model", s.cfg.Model)

	for s.clock.Now().Sub(start) < s.cfg.Duration {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		res.Iterations++
		turn, err := s.turn(ctx)
		if err == nil {
			s.setState(ctx, StateLogging)
			s.transcript.Append(turn)
			s.metrics.Turns.Add(ctx, 1)
			continue
		}

		kind := Classify(err)
		s.metrics.RecordFailure(context.WithoutCancel(ctx), kind.String())
		if kind == FailureInterrupted {
			res.Interrupted = true
			break
		}
		if kind.Recoverable() {
			log.Debug("turn skipped", "kind", kind.String(), "err", err)
			continue
		}
		log.Error("exam session failed", "kind", kind.String(), "err", err)
		res.Failure = kind
		return finish(err)
	}

	if res.Interrupted {
		res.Failure = FailureInterrupted
		s.report(NoticeWarning, MsgInterrupted)
	}

	a, err := s.assess(context.WithoutCancel(ctx))
	if err != nil {
		res.Failure = FailureGeneration
		return finish(err)
	}
	res.Assessment = a
	return finish(nil)
}

// turn runs one listen → transcribe → generate → speak cycle. Recoverable
// failures and session-ending failures are reported before returning.
func (s *Session) turn(ctx context.Context) (Turn, error) {
	ctx, span := observe.StartSpan(ctx, "exam.turn")
	defer span.End()

	s.setState(ctx, StateListening)
	s.report(NoticeStatus, MsgListening)
	utt, err := s.ears.Capture(ctx)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return Turn{}, interrupted(ctx)
		case errors.Is(err, audio.ErrWaitTimeout):
			s.report(NoticeWarning, MsgNoSpeech)
			return Turn{}, err
		default:
			s.report(NoticeError, "Could not read from the microphone: "+err.Error())
			return Turn{}, fmt.Errorf("%w: %w", ErrCapture, err)
		}
	}

	s.setState(ctx, StateTranscribing)
	student, err := s.ears.Recognize(ctx, utt)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return Turn{}, interrupted(ctx)
		case errors.Is(err, stt.ErrUnintelligible):
			s.report(NoticeWarning, MsgUnintelligible)
		default:
			s.report(NoticeError, MsgUnavailable+unavailableCause(err))
		}
		return Turn{}, err
	}
	s.report(NoticeStudent, student)

	s.setState(ctx, StateGenerating)
	patient, err := s.gen.Generate(ctx, "turn", TurnPrompt(s.cfg.Scenario, student), s.cfg.Turn)
	if err != nil {
		if ctx.Err() != nil {
			return Turn{}, interrupted(ctx)
		}
		s.report(NoticeError, "Could not generate the patient's reply: "+err.Error())
		return Turn{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	s.report(NoticePatient, patient)

	s.setState(ctx, StateSpeaking)
	if err := s.speak(ctx, patient); err != nil {
		if ctx.Err() != nil {
			return Turn{}, interrupted(ctx)
		}
		s.report(NoticeError, "Could not speak the patient's reply: "+err.Error())
		return Turn{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	return Turn{Student: student, Patient: patient}, nil
}

func (s *Session) speak(ctx context.Context, text string) error {
	if s.cfg.SpeakTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SpeakTimeout)
		defer cancel()
	}
	start := time.Now()
	var err error
	if rs, ok := s.speaker.(tts.RateSpeaker); ok && s.cfg.SpeechRate > 0 {
		err = rs.SpeakAt(ctx, text, s.cfg.SpeechRate)
	} else {
		err = s.speaker.Speak(ctx, text)
	}
	observe.ObserveSince(ctx, s.metrics.TTSDuration, start)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordProviderRequest(ctx, "tts", status)
	return err
}

// assess grades the transcript once. ctx must already be detached from the
// session's cancellation; the generator applies its own deadline.
func (s *Session) assess(ctx context.Context) (*Assessment, error) {
	ctx, span := observe.StartSpan(ctx, "exam.assess")
	defer span.End()

	s.setState(ctx, StateAssessing)
	s.report(NoticeInfo, MsgAssessing)

	turns := s.transcript.Len()
	if turns == 0 {
		observe.Logger(ctx).Warn("assessing an empty transcript")
	}
	prompt := AssessmentPrompt(s.cfg.Criteria, &s.transcript)
	feedback, err := s.gen.Generate(ctx, "assessment", prompt, s.cfg.Assessment)
	if err != nil {
		s.report(NoticeError, "Could not generate the assessment: "+err.Error())
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	s.report(NoticeFeedback, feedback)
	return &Assessment{Feedback: feedback, Prompt: prompt, Turns: turns}, nil
}

func (s *Session) setState(ctx context.Context, st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev == st {
		return
	}
	observe.Logger(ctx).Debug("exam state", "from", prev.String(), "to", st.String())
	s.report(NoticeState, st.String())
}

func (s *Session) report(kind NoticeKind, text string) {
	s.reporter.Report(Notice{Kind: kind, Text: text})
}

func interrupted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
}

// unavailableCause returns the message of the service failure behind err.
func unavailableCause(err error) string {
	var ue *stt.UnavailableError
	if errors.As(err, &ue) {
		return ue.Err.Error()
	}
	return err.Error()
}
