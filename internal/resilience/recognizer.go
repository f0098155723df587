package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt"
)

// GuardedRecognizer is an [stt.Recognizer] behind a [CircuitBreaker]. Only
// errors matching [stt.ErrUnavailable] count as failures; unintelligible
// audio and cancellation leave the breaker alone.
type GuardedRecognizer struct {
	rec stt.Recognizer
	cb  *CircuitBreaker
}

// GuardRecognizer wraps rec with a breaker built from cfg. cfg.IsFailure is
// overridden when nil.
func GuardRecognizer(rec stt.Recognizer, cfg CircuitBreakerConfig) *GuardedRecognizer {
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return errors.Is(err, stt.ErrUnavailable) }
	}
	if cfg.Name == "" {
		cfg.Name = "stt"
	}
	return &GuardedRecognizer{rec: rec, cb: NewCircuitBreaker(cfg)}
}

// Recognize implements [stt.Recognizer]. While the breaker is open it fails
// immediately with an error matching both [stt.ErrUnavailable] and
// [ErrCircuitOpen].
func (g *GuardedRecognizer) Recognize(ctx context.Context, utt audio.Utterance) (stt.Result, error) {
	var res stt.Result
	err := g.cb.Execute(func() error {
		var err error
		res, err = g.rec.Recognize(ctx, utt)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return stt.Result{}, stt.Unavailable(fmt.Errorf("speech recognition paused after repeated failures: %w", err))
	}
	return res, err
}

// Breaker exposes the underlying breaker for health checks.
func (g *GuardedRecognizer) Breaker() *CircuitBreaker { return g.cb }

var _ stt.Recognizer = (*GuardedRecognizer)(nil)
