// Package exam runs one ADC oral-exam simulation: a timed conversation
// between a dental student speaking into a microphone and an LLM playing the
// patient, followed by a single assessment of the whole transcript against
// the examiner's criteria.
//
// A [Session] sequences the blocking stages of every turn (capture,
// transcription, generation, speech) on one goroutine and reports progress
// through a [Reporter]. The wall-clock budget is checked only between turns.
package exam

import (
	"strings"
	"time"

	"github.com/SalahAli20/ADCAI/pkg/provider/tts"
)

// ── Fixed session constants ──────────────────────────────────────────────────

const (
	// DefaultModel is the completion model used for both the patient turns and
	// the assessment.
	DefaultModel = "gpt-4"

	// DefaultDuration is the conversation budget.
	DefaultDuration = 120 * time.Second

	// DefaultListenTimeout bounds the wait for the student to start speaking.
	DefaultListenTimeout = 5 * time.Second

	// Persona is the system message sent with every completion.
	Persona = "You are a helpful medical assistant."

	// TurnMaxTokens caps each patient reply.
	TurnMaxTokens = 100

	// AssessmentMaxTokens caps the final feedback.
	AssessmentMaxTokens = 300

	// DefaultCriteria prefills the criteria field of the start form.
	DefaultCriteria = "The student should demonstrate clear communication, accurate diagnosis, and appropriate patient management."

	// DefaultScenario prefills the scenario field of the start form.
	DefaultScenario = "A patient presents with severe toothache in the lower right molar region."
)

// Per-call budgets derived from the session context.
const (
	defaultRecognizeTimeout = 30 * time.Second
	defaultGenerateTimeout  = 60 * time.Second
	defaultSpeakTimeout     = 60 * time.Second
)

// GenerationParams are the sampling settings of one completion call.
type GenerationParams struct {
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

func fixedParams(maxTokens int) GenerationParams {
	return GenerationParams{
		MaxTokens:   maxTokens,
		Temperature: 0.7,
		TopP:        1.0,
	}
}

// SessionConfig is the immutable configuration of one run.
type SessionConfig struct {
	// Criteria is the examiner's grading rubric. Required.
	Criteria string

	// Scenario describes the patient's presentation.
	Scenario string

	// Duration is the conversation budget, checked between turns.
	Duration time.Duration

	// Model names the completion model. Informational: the provider is bound
	// to its model at construction.
	Model string

	Turn       GenerationParams
	Assessment GenerationParams

	// ListenTimeout bounds the wait for speech onset.
	ListenTimeout time.Duration

	// SpeechRate is the synthesis rate in words per minute.
	SpeechRate int

	RecognizeTimeout time.Duration
	GenerateTimeout  time.Duration
	SpeakTimeout     time.Duration
}

// NewSessionConfig returns the configuration for a run with the given
// criteria and scenario and every other field at its fixed value.
func NewSessionConfig(criteria, scenario string) SessionConfig {
	return SessionConfig{
		Criteria:         criteria,
		Scenario:         scenario,
		Duration:         DefaultDuration,
		Model:            DefaultModel,
		Turn:             fixedParams(TurnMaxTokens),
		Assessment:       fixedParams(AssessmentMaxTokens),
		ListenTimeout:    DefaultListenTimeout,
		SpeechRate:       tts.DefaultRate,
		RecognizeTimeout: defaultRecognizeTimeout,
		GenerateTimeout:  defaultGenerateTimeout,
		SpeakTimeout:     defaultSpeakTimeout,
	}
}

// Validate reports [ErrNoCriteria] when the criteria are blank.
func (c SessionConfig) Validate() error {
	if strings.TrimSpace(c.Criteria) == "" {
		return ErrNoCriteria
	}
	return nil
}
