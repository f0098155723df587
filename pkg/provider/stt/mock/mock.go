// Package mock provides a scripted test double for [stt.Recognizer].
//
// Example:
//
//	r := &mock.Recognizer{Script: []mock.Step{
//	    {Text: "Where does it hurt?"},
//	    {Err: stt.ErrUnintelligible},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt"
)

// Step is one scripted Recognize outcome.
type Step struct {
	Text string
	Err  error
}

// Recognizer is a mock implementation of [stt.Recognizer]. Each call consumes
// the next Step; once the script is exhausted the last Step repeats. An empty
// script yields empty text.
type Recognizer struct {
	mu sync.Mutex

	// Script holds the outcomes returned in order.
	Script []Step

	// OnRecognize, if set, runs at the start of every call. Returning an error
	// short-circuits the call with that error.
	OnRecognize func(ctx context.Context, utt audio.Utterance) error

	// Calls records every utterance passed to Recognize.
	Calls []audio.Utterance
}

// Recognize implements [stt.Recognizer].
func (r *Recognizer) Recognize(ctx context.Context, utt audio.Utterance) (stt.Result, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, utt)
	n := len(r.Calls)
	hook := r.OnRecognize
	r.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, utt); err != nil {
			return stt.Result{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Script) == 0 {
		return stt.Result{}, nil
	}
	step := r.Script[min(n-1, len(r.Script)-1)]
	if step.Err != nil {
		return stt.Result{}, step.Err
	}
	return stt.Result{Text: step.Text, Confidence: 1}, nil
}

// CallCount returns the number of Recognize invocations.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

var _ stt.Recognizer = (*Recognizer)(nil)
