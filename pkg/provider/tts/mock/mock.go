// Package mock provides a test double for the tts.Speaker interface.
//
// Example:
//
//	s := &mock.Speaker{}
//	_ = s.Speak(ctx, "It hurts when I chew.")
//	s.Texts() // ["It hurts when I chew."]
package mock

import (
	"context"
	"sync"

	"github.com/SalahAli20/ADCAI/pkg/provider/tts"
)

// Speaker is a mock implementation of tts.Speaker.
type Speaker struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every Speak call.
	Err error

	// OnSpeak, if set, runs before Speak returns. A non-nil result replaces
	// Err for that call.
	OnSpeak func(ctx context.Context, text string) error

	spoken []string
	rates  []int
}

// Speak implements tts.Speaker. It records a rate of 0.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	return s.SpeakAt(ctx, text, 0)
}

// SpeakAt implements tts.RateSpeaker.
func (s *Speaker) SpeakAt(ctx context.Context, text string, wpm int) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.rates = append(s.rates, wpm)
	hook := s.OnSpeak
	err := s.Err
	s.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx, text); herr != nil {
			return herr
		}
	}
	return err
}

// Texts returns a copy of every text passed to Speak, in order.
func (s *Speaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

// Rates returns the rate of every call, in order.
func (s *Speaker) Rates() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.rates))
	copy(out, s.rates)
	return out
}

var _ tts.RateSpeaker = (*Speaker)(nil)
