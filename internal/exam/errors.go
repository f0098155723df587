package exam

import (
	"context"
	"errors"

	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt"
)

var (
	// ErrNoCriteria is returned by [Session.Run] when the criteria are blank.
	// The session never starts.
	ErrNoCriteria = errors.New("exam: assessment criteria are required")

	// ErrInterrupted marks a turn abandoned because the session context was
	// cancelled.
	ErrInterrupted = errors.New("exam: session interrupted")

	// ErrGeneration wraps completion failures. It ends the session without an
	// assessment.
	ErrGeneration = errors.New("exam: response generation failed")

	// ErrSynthesis wraps speech synthesis failures. It ends the session
	// without an assessment.
	ErrSynthesis = errors.New("exam: speech synthesis failed")

	// ErrCapture wraps audio device failures other than the wait timeout. It
	// ends the session without an assessment.
	ErrCapture = errors.New("exam: audio capture failed")

	// ErrAlreadyRun is returned when Run is called twice on one Session.
	ErrAlreadyRun = errors.New("exam: session already run")
)

// FailureKind names a class of failure and how the loop treats it.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureNoCriteria
	FailureUnintelligible
	FailureUnavailable
	FailureCaptureTimeout
	FailureInterrupted
	FailureGeneration
	FailureSynthesis
	FailureCapture
	FailureUnknown
)

var failureNames = [...]string{
	FailureNone:           "none",
	FailureNoCriteria:     "no_criteria",
	FailureUnintelligible: "unintelligible",
	FailureUnavailable:    "unavailable",
	FailureCaptureTimeout: "capture_timeout",
	FailureInterrupted:    "interrupted",
	FailureGeneration:     "generation",
	FailureSynthesis:      "synthesis",
	FailureCapture:        "capture",
	FailureUnknown:        "unknown",
}

func (k FailureKind) String() string {
	if k < 0 || int(k) >= len(failureNames) {
		return "unknown"
	}
	return failureNames[k]
}

// Recoverable reports whether the loop skips the turn and keeps going.
func (k FailureKind) Recoverable() bool {
	switch k {
	case FailureUnintelligible, FailureUnavailable, FailureCaptureTimeout:
		return true
	}
	return false
}

// Classify maps err to its [FailureKind]. Session-ending wrappers take
// precedence over the cause they wrap.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrNoCriteria):
		return FailureNoCriteria
	case errors.Is(err, ErrInterrupted):
		return FailureInterrupted
	case errors.Is(err, ErrGeneration):
		return FailureGeneration
	case errors.Is(err, ErrSynthesis):
		return FailureSynthesis
	case errors.Is(err, ErrCapture):
		return FailureCapture
	case errors.Is(err, audio.ErrWaitTimeout):
		return FailureCaptureTimeout
	case errors.Is(err, stt.ErrUnintelligible):
		return FailureUnintelligible
	case errors.Is(err, stt.ErrUnavailable):
		return FailureUnavailable
	case errors.Is(err, context.Canceled):
		return FailureInterrupted
	default:
		return FailureUnknown
	}
}
