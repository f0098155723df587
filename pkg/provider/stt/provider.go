// Package stt defines the Recognizer interface for Speech-to-Text backends.
//
// A recognizer takes one captured [audio.Utterance] and returns the decoded
// text. Failures fall into two classes that callers handle differently:
//
//   - [ErrUnintelligible]: the service was reached but could not decode any
//     speech from the audio.
//   - [ErrUnavailable]: the service could not be reached or answered with an
//     error. Backends wrap the cause in an [UnavailableError] so the original
//     message survives for display.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/SalahAli20/ADCAI/pkg/audio"
)

var (
	// ErrUnintelligible is returned when speech was captured but no transcript
	// could be produced from it.
	ErrUnintelligible = errors.New("stt: could not understand audio")

	// ErrUnavailable matches every [UnavailableError] via errors.Is.
	ErrUnavailable = errors.New("stt: recognition service unavailable")
)

// UnavailableError reports a transport or service failure. Its message is the
// message of the underlying cause.
type UnavailableError struct {
	Err error
}

// Unavailable wraps err as an [UnavailableError]. A nil err yields nil.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Err: err}
}

func (e *UnavailableError) Error() string { return e.Err.Error() }

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports whether target is [ErrUnavailable].
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Result is a single recognition result.
type Result struct {
	// Text is the transcribed speech content, trimmed of surrounding whitespace.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// backend does not report one.
	Confidence float64
}

// Recognizer is the abstraction over any STT backend.
type Recognizer interface {
	// Recognize transcribes utt. It returns [ErrUnintelligible] when no speech
	// could be decoded and an error matching [ErrUnavailable] when the service
	// failed. Cancelling ctx aborts the request.
	Recognize(ctx context.Context, utt audio.Utterance) (Result, error)
}
