package exam

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SalahAli20/ADCAI/pkg/audio"
	audiomock "github.com/SalahAli20/ADCAI/pkg/audio/mock"
	"github.com/SalahAli20/ADCAI/pkg/provider/llm"
	llmmock "github.com/SalahAli20/ADCAI/pkg/provider/llm/mock"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt"
	sttmock "github.com/SalahAli20/ADCAI/pkg/provider/stt/mock"
	ttsmock "github.com/SalahAli20/ADCAI/pkg/provider/tts/mock"
)

// ─── Test helpers ─────────────────────────────────────────────────────────────

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recorder collects notices.
type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) Report(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// visible returns the notices a student would see, skipping state changes.
func (r *recorder) visible() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notice
	for _, n := range r.notices {
		if n.Kind != NoticeState {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) has(kind NoticeKind, text string) bool {
	for _, n := range r.visible() {
		if n.Kind == kind && n.Text == text {
			return true
		}
	}
	return false
}

const rate = audio.DefaultSampleRate

// spokenTurn is the audio of one utterance: a second of ambient silence for
// calibration, a short burst of speech, then a pause that ends the phrase.
// It lasts 2.2 s of audio time.
func spokenTurn() []audio.Frame {
	return []audio.Frame{
		audiomock.Silence(rate, time.Second),
		audiomock.Tone(rate, 200*time.Millisecond, 2000),
		audiomock.Silence(rate, time.Second),
	}
}

// silentTurn is calibration followed by five seconds of silence, which
// exhausts the default wait timeout.
func silentTurn() []audio.Frame {
	return []audio.Frame{
		audiomock.Silence(rate, time.Second),
		audiomock.Silence(rate, 5*time.Second),
	}
}

type harness struct {
	clock   *fakeClock
	src     *audiomock.Source
	rec     *sttmock.Recognizer
	llm     *llmmock.Provider
	speaker *ttsmock.Speaker
	notices *recorder
	cfg     SessionConfig
}

// newHarness returns a harness whose clock advances with the audio consumed.
func newHarness(frames ...[]audio.Frame) *harness {
	h := &harness{
		clock:   newFakeClock(),
		rec:     &sttmock.Recognizer{},
		llm:     &llmmock.Provider{},
		speaker: &ttsmock.Speaker{},
		notices: &recorder{},
		cfg:     NewSessionConfig(DefaultCriteria, DefaultScenario),
	}
	var all []audio.Frame
	for _, f := range frames {
		all = append(all, f...)
	}
	h.src = &audiomock.Source{Frames: all, OnRead: func(f audio.Frame) { h.clock.Advance(f.Duration()) }}
	return h
}

func (h *harness) session(t *testing.T) *Session {
	t.Helper()
	l, err := NewListener(h.src, h.rec)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	s, err := NewSession(h.cfg, l, h.llm, h.speaker, WithReporter(h.notices), WithClock(h.clock))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

// advanceOnSpeak makes every Speak call take d of session time.
func (h *harness) advanceOnSpeak(d time.Duration) {
	h.speaker.OnSpeak = func(context.Context, string) error {
		h.clock.Advance(d)
		return nil
	}
}

// ─── Preconditions ────────────────────────────────────────────────────────────

func TestRun_BlankCriteriaNeverStarts(t *testing.T) {
	for _, criteria := range []string{"", "   ", "\n\t"} {
		h := newHarness(spokenTurn())
		h.cfg.Criteria = criteria

		res, err := h.session(t).Run(context.Background())
		if !errors.Is(err, ErrNoCriteria) {
			t.Fatalf("criteria %q: err = %v, want ErrNoCriteria", criteria, err)
		}
		if res != nil {
			t.Errorf("criteria %q: result = %+v, want nil", criteria, res)
		}
		if n := len(h.llm.Calls()); n != 0 {
			t.Errorf("criteria %q: llm calls = %d, want 0", criteria, n)
		}
		if n := h.rec.CallCount(); n != 0 {
			t.Errorf("criteria %q: stt calls = %d, want 0", criteria, n)
		}
		if n := len(h.speaker.Texts()); n != 0 {
			t.Errorf("criteria %q: tts calls = %d, want 0", criteria, n)
		}
		if h.src.Reads != 0 {
			t.Errorf("criteria %q: audio reads = %d, want 0", criteria, h.src.Reads)
		}

		got := h.notices.visible()
		if len(got) != 2 || got[0] != (Notice{NoticeError, MsgNoCriteria}) || got[1].Kind != NoticeDone {
			t.Errorf("criteria %q: notices = %+v", criteria, got)
		}
	}
}

func TestRun_SecondRunRejected(t *testing.T) {
	h := newHarness()
	h.cfg.Duration = 0
	s := h.session(t)
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("second Run: err = %v, want ErrAlreadyRun", err)
	}
}

// ─── Turn accounting ──────────────────────────────────────────────────────────

func TestRun_OneTurnPerRoundTripInOrder(t *testing.T) {
	h := newHarness(spokenTurn(), spokenTurn(), spokenTurn())
	h.rec.Script = []sttmock.Step{{Text: "first"}, {Text: "second"}, {Text: "third"}}
	h.llm.Responses = []string{"reply one", "reply two", "reply three", "feedback"}
	h.advanceOnSpeak(50 * time.Second)

	res, err := h.session(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []Turn{
		{Student: "first", Patient: "reply one"},
		{Student: "second", Patient: "reply two"},
		{Student: "third", Patient: "reply three"},
	}
	if len(res.Transcript) != len(want) {
		t.Fatalf("transcript = %+v, want %d turns", res.Transcript, len(want))
	}
	for i := range want {
		if res.Transcript[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, res.Transcript[i], want[i])
		}
	}
	if res.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", res.Iterations)
	}
	if got := h.speaker.Texts(); strings.Join(got, "|") != "reply one|reply two|reply three" {
		t.Errorf("spoken = %v", got)
	}
	if res.Assessment == nil || res.Assessment.Feedback != "feedback" || res.Assessment.Turns != 3 {
		t.Errorf("assessment = %+v", res.Assessment)
	}
	if res.Outcome() != "finished" {
		t.Errorf("outcome = %q, want finished", res.Outcome())
	}
}

func TestRun_UnintelligibleLeavesTranscriptUnchanged(t *testing.T) {
	h := newHarness(spokenTurn(), spokenTurn())
	h.rec.Script = []sttmock.Step{{Err: stt.ErrUnintelligible}, {Text: "hello"}}
	h.rec.OnRecognize = func(context.Context, audio.Utterance) error {
		h.clock.Advance(70 * time.Second)
		return nil
	}
	h.llm.Responses = []string{"hi doctor", "feedback"}

	res, err := h.session(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Transcript) != 1 || res.Transcript[0].Student != "hello" {
		t.Fatalf("transcript = %+v, want the single recognised turn", res.Transcript)
	}
	if res.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", res.Iterations)
	}
	if !h.notices.has(NoticeWarning, MsgUnintelligible) {
		t.Error("missing unintelligible warning")
	}
	if n := len(h.llm.Calls()); n != 2 {
		t.Errorf("llm calls = %d, want 2 (one turn, one assessment)", n)
	}
}

func TestRun_UnavailableShowsCauseAndContinues(t *testing.T) {
	h := newHarness(spokenTurn(), spokenTurn())
	h.rec.Script = []sttmock.Step{
		{Err: stt.Unavailable(errors.New("connection refused"))},
		{Text: "hello"},
	}
	h.rec.OnRecognize = func(context.Context, audio.Utterance) error {
		h.clock.Advance(70 * time.Second)
		return nil
	}

	res, err := h.session(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Transcript) != 1 {
		t.Fatalf("transcript = %+v, want 1 turn", res.Transcript)
	}
	want := "Could not request results from the speech recognition service; connection refused"
	if !h.notices.has(NoticeError, want) {
		t.Errorf("missing %q in %+v", want, h.notices.visible())
	}
}

func TestRun_CaptureTimeoutSkipsTurn(t *testing.T) {
	h := newHarness(silentTurn(), spokenTurn())
	h.cfg.Duration = 8 * time.Second
	h.rec.Script = []sttmock.Step{{Text: "sorry, I was thinking"}}

	res, err := h.session(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", res.Iterations)
	}
	if len(res.Transcript) != 1 {
		t.Errorf("transcript = %+v, want 1 turn", res.Transcript)
	}
	if h.rec.CallCount() != 1 {
		t.Errorf("stt calls = %d, want 1 (silence is never sent)", h.rec.CallCount())
	}
	if !h.notices.has(NoticeWarning, MsgNoSpeech) {
		t.Error("missing no-speech warning")
	}
}

// ─── Deadline ────────────────────────────────────────────────────────────────

func TestRun_DeadlineCheckedOnlyBetweenTurns(t *testing.T) {
	h := newHarness(spokenTurn(), spokenTurn())
	h.advanceOnSpeak(130 * time.Second)

	res, err := h.session(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 1 {
		t.Errorf("iterations = %d, want exactly 1", res.Iterations)
	}
	if len(res.Transcript) != 1 {
		t.Errorf("the overrunning turn must complete; transcript = %+v", res.Transcript)
	}
	if res.Elapsed < 130*time.Second {
		t.Errorf("elapsed = %v, want >= 130s", res.Elapsed)
	}
}

// ─── Assessment ──────────────────────────────────────────────────────────────

func TestRun_AssessesEmptyTranscriptOnce(t *testing.T) {
	h := newHarness()
	h.cfg.Criteria = "Be kind."
	h.cfg.Duration = 0
	h.llm.Responses = []string{"no conversation took place"}

	res, err := h.session(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	calls := h.llm.Calls()
	if len(calls) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if got := req.Messages[0].Content; got != "ADC Criteria: Be kind.\nConversation: \nAssessment:" {
		t.Errorf("assessment prompt = %q", got)
	}
	if req.MaxTokens != AssessmentMaxTokens {
		t.Errorf("max tokens = %d, want %d", req.MaxTokens, AssessmentMaxTokens)
	}
	if res.Assessment == nil || res.Assessment.Turns != 0 {
		t.Errorf("assessment = %+v", res.Assessment)
	}
	if !h.notices.has(NoticeFeedback, "no conversation took place") {
		t.Error("missing feedback notice")
	}
}

func TestRun_InterruptionStillAssesses(t *testing.T) {
	h := newHarness(spokenTurn(), spokenTurn(), spokenTurn())
	h.rec.Script = []sttmock.Step{{Text: "one"}, {Text: "two"}}
	h.llm.Responses = []string{"reply one", "reply two", "partial feedback"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.speaker.OnSpeak = func(ctx context.Context, text string) error {
		if text == "reply two" {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	var assessCtxErr error
	h.llm.OnComplete = func(ctx context.Context, req llm.CompletionRequest) error {
		if req.MaxTokens == AssessmentMaxTokens {
			assessCtxErr = ctx.Err()
		}
		return nil
	}

	res, err := h.session(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Interrupted || res.Outcome() != "interrupted" {
		t.Errorf("interrupted = %v, outcome = %q", res.Interrupted, res.Outcome())
	}
	if len(res.Transcript) != 1 || res.Transcript[0].Student != "one" {
		t.Errorf("transcript = %+v, want only the completed turn", res.Transcript)
	}
	if res.Assessment == nil || res.Assessment.Feedback != "partial feedback" {
		t.Fatalf("assessment = %+v", res.Assessment)
	}
	if assessCtxErr != nil {
		t.Errorf("assessment ran on a cancelled context: %v", assessCtxErr)
	}
	if !h.notices.has(NoticeWarning, MsgInterrupted) {
		t.Error("missing interruption warning")
	}
	if !strings.Contains(res.Assessment.Prompt, "Student: one\nPatient: reply one") {
		t.Errorf("prompt = %q", res.Assessment.Prompt)
	}
}

func TestRun_CancelledBeforeFirstTurn(t *testing.T) {
	h := newHarness(spokenTurn())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.session(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 0 || !res.Interrupted {
		t.Errorf("iterations = %d, interrupted = %v", res.Iterations, res.Interrupted)
	}
	if len(h.llm.Calls()) != 1 {
		t.Errorf("llm calls = %d, want the assessment only", len(h.llm.Calls()))
	}
}

// ─── Session-ending failures ──────────────────────────────────────────────────

func TestRun_GenerationFailureEndsWithoutAssessment(t *testing.T) {
	h := newHarness(spokenTurn())
	h.llm.CompleteErr = errors.New("quota exceeded")

	res, err := h.session(t).Run(context.Background())
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
	if Classify(err) != FailureGeneration {
		t.Errorf("Classify = %v", Classify(err))
	}
	if res == nil || res.Assessment != nil {
		t.Fatalf("result = %+v, want no assessment", res)
	}
	if res.Outcome() != "failed" {
		t.Errorf("outcome = %q, want failed", res.Outcome())
	}
	if n := len(h.llm.Calls()); n != 1 {
		t.Errorf("llm calls = %d, want 1", n)
	}
	if len(h.speaker.Texts()) != 0 {
		t.Error("nothing should be spoken")
	}
}

func TestRun_SynthesisFailureEndsWithoutAssessment(t *testing.T) {
	h := newHarness(spokenTurn())
	h.speaker.Err = errors.New("espeak-ng: exit status 1")

	res, err := h.session(t).Run(context.Background())
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("err = %v, want ErrSynthesis", err)
	}
	if res.Assessment != nil || len(res.Transcript) != 0 {
		t.Errorf("result = %+v", res)
	}
	if n := len(h.llm.Calls()); n != 1 {
		t.Errorf("llm calls = %d, want 1 (no assessment)", n)
	}
}

func TestRun_CaptureDeviceFailureEndsSession(t *testing.T) {
	h := newHarness()
	h.src.Err = errors.New("arecord: device busy")

	res, err := h.session(t).Run(context.Background())
	if !errors.Is(err, ErrCapture) {
		t.Fatalf("err = %v, want ErrCapture", err)
	}
	if res.Failure != FailureCapture || res.Assessment != nil {
		t.Errorf("result = %+v", res)
	}
}

func TestRun_AssessmentFailure(t *testing.T) {
	h := newHarness()
	h.cfg.Duration = 0
	h.llm.CompleteErr = errors.New("service unavailable")

	res, err := h.session(t).Run(context.Background())
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
	if res.Assessment != nil || res.Failure != FailureGeneration {
		t.Errorf("result = %+v", res)
	}
}

// ─── End to end ──────────────────────────────────────────────────────────────

func TestRun_ToothacheScenario(t *testing.T) {
	h := newHarness(spokenTurn())
	h.rec.Script = []sttmock.Step{{Text: "Hello, what brings you in today?"}}
	h.llm.Responses = []string{
		"  I have a terrible toothache in my lower right molar.\n",
		"Good communication.",
	}
	h.advanceOnSpeak(DefaultDuration)

	s := h.session(t)
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := h.llm.Calls()
	if len(calls) != 2 {
		t.Fatalf("llm calls = %d, want 2", len(calls))
	}
	turnReq := calls[0].Req
	wantPrompt := "Scenario: " + DefaultScenario + "\nStudent: Hello, what brings you in today?\nPatient:"
	if turnReq.Messages[0].Content != wantPrompt {
		t.Errorf("turn prompt = %q, want %q", turnReq.Messages[0].Content, wantPrompt)
	}
	if turnReq.SystemPrompt != Persona || turnReq.MaxTokens != 100 ||
		turnReq.Temperature != 0.7 || turnReq.TopP != 1.0 ||
		turnReq.FrequencyPenalty != 0 || turnReq.PresencePenalty != 0 {
		t.Errorf("turn request = %+v", turnReq)
	}

	wantAssess := "ADC Criteria: " + DefaultCriteria +
		"\nConversation: Student: Hello, what brings you in today?\nPatient: I have a terrible toothache in my lower right molar.\nAssessment:"
	if got := calls[1].Req.Messages[0].Content; got != wantAssess {
		t.Errorf("assessment prompt = %q, want %q", got, wantAssess)
	}

	want := []Notice{
		{NoticeInfo, MsgStarted},
		{NoticeStatus, MsgListening},
		{NoticeStudent, "Hello, what brings you in today?"},
		{NoticePatient, "I have a terrible toothache in my lower right molar."},
		{NoticeInfo, MsgAssessing},
		{NoticeFeedback, "Good communication."},
		{NoticeDone, ""},
	}
	got := h.notices.visible()
	if len(got) != len(want) {
		t.Fatalf("notices = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notice %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if res.Assessment.Feedback != "Good communication." {
		t.Errorf("feedback = %q", res.Assessment.Feedback)
	}
	if rates := h.speaker.Rates(); len(rates) != 1 || rates[0] != 150 {
		t.Errorf("speech rates = %v, want [150]", rates)
	}
	if s.State() != StateFinished {
		t.Errorf("state = %v, want finished", s.State())
	}
}

func TestRun_ReportsStateTransitions(t *testing.T) {
	h := newHarness(spokenTurn())
	h.advanceOnSpeak(DefaultDuration)

	if _, err := h.session(t).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var states []string
	for _, n := range h.notices.notices {
		if n.Kind == NoticeState {
			states = append(states, n.Text)
		}
	}
	want := "listening,transcribing,generating,speaking,logging,assessing,finished"
	if got := strings.Join(states, ","); got != want {
		t.Errorf("states = %s, want %s", got, want)
	}
}
