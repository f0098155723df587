// Package espeak provides a local text-to-speech speaker that shells out to
// espeak-ng (or classic espeak). No network access is needed, matching the
// offline engine the simulator has always used for the patient's voice.
package espeak

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/tts"
)

// Speaker implements tts.Speaker by running espeak-ng.
type Speaker struct {
	command string
	rate    int
	voice   string
	player  audio.Player
}

// Option is a functional option for Speaker.
type Option func(*Speaker)

// WithCommand overrides the binary name. Defaults to "espeak-ng".
func WithCommand(cmd string) Option {
	return func(s *Speaker) { s.command = cmd }
}

// WithRate sets the speaking rate in words per minute. Defaults to 150.
func WithRate(wpm int) Option {
	return func(s *Speaker) { s.rate = wpm }
}

// WithVoice selects an espeak voice such as "en-us" or "en+f3".
func WithVoice(voice string) Option {
	return func(s *Speaker) { s.voice = voice }
}

// WithPlayer makes espeak write WAV to stdout and plays it through p instead
// of letting espeak open the sound device itself.
func WithPlayer(p audio.Player) Option {
	return func(s *Speaker) { s.player = p }
}

// New returns a Speaker. It fails when the binary is not on PATH.
func New(opts ...Option) (*Speaker, error) {
	s := &Speaker{command: "espeak-ng", rate: tts.DefaultRate}
	for _, o := range opts {
		o(s)
	}
	if s.rate <= 0 {
		return nil, fmt.Errorf("espeak: rate must be positive, got %d", s.rate)
	}
	if _, err := exec.LookPath(s.command); err != nil {
		return nil, fmt.Errorf("espeak: %w", err)
	}
	return s, nil
}

// args builds the espeak command line. Text is passed after "--" so a reply
// starting with a dash is never parsed as a flag.
func (s *Speaker) args(text string, wpm int) []string {
	args := []string{"-s", strconv.Itoa(wpm)}
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	if s.player != nil {
		args = append(args, "--stdout")
	}
	return append(args, "--", text)
}

// Speak implements tts.Speaker at the configured rate.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	return s.SpeakAt(ctx, text, s.rate)
}

// SpeakAt implements tts.RateSpeaker. A non-positive wpm uses the configured
// rate.
func (s *Speaker) SpeakAt(ctx context.Context, text string, wpm int) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if wpm <= 0 {
		wpm = s.rate
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.command, s.args(text, wpm)...)
	cmd.Stderr = &stderr
	if s.player != nil {
		cmd.Stdout = &stdout
	}
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("espeak: %s: %w: %s", s.command, err, bytes.TrimSpace(stderr.Bytes()))
	}
	if s.player == nil {
		return nil
	}

	wav := stdout.Bytes()
	info, err := audio.ParseWAV(wav)
	if err != nil {
		return fmt.Errorf("espeak: %w", err)
	}
	if err := s.player.Play(ctx, wav[info.DataOffset:], info.SampleRate, info.Channels); err != nil {
		return fmt.Errorf("espeak: play: %w", err)
	}
	return nil
}

var _ tts.RateSpeaker = (*Speaker)(nil)
