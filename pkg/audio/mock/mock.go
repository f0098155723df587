// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Player] for use in unit tests.
//
// Both mocks are safe for concurrent use and record their calls so tests can
// assert on them.
//
// Typical usage:
//
//	src := &mock.Source{Frames: []audio.Frame{mock.Tone(16000, 20*time.Millisecond, 1000)}}
//	utt, err := capturer.Listen(ctx, src, 5*time.Second)
package mock

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/SalahAli20/ADCAI/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock [audio.Source] that replays a fixed frame list. Once the
// list is exhausted it returns Err, or [audio.ErrSourceClosed] when Err is nil.
type Source struct {
	mu sync.Mutex

	// Backlog holds frames buffered before the next read. ReadFrame returns
	// them ahead of Frames; Flush discards them.
	Backlog []audio.Frame

	// Frames are returned in order by ReadFrame.
	Frames []audio.Frame

	// Err is returned after Frames is exhausted.
	Err error

	// OnRead, if set, runs before each ReadFrame returns. Tests use it to
	// advance a fake clock.
	OnRead func(audio.Frame)

	// Reads counts ReadFrame calls.
	Reads int

	// Flushes counts Flush calls.
	Flushes int

	// Closed is set after Close.
	Closed bool

	pos int
}

// ReadFrame implements [audio.Source].
func (s *Source) ReadFrame(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	s.mu.Lock()
	s.Reads++
	if s.Closed {
		s.mu.Unlock()
		return audio.Frame{}, audio.ErrSourceClosed
	}
	if len(s.Backlog) > 0 {
		f := s.Backlog[0]
		s.Backlog = s.Backlog[1:]
		hook := s.OnRead
		s.mu.Unlock()
		if hook != nil {
			hook(f)
		}
		return f, nil
	}
	if s.pos >= len(s.Frames) {
		err := s.Err
		s.mu.Unlock()
		if err == nil {
			err = audio.ErrSourceClosed
		}
		return audio.Frame{}, err
	}
	f := s.Frames[s.pos]
	s.pos++
	hook := s.OnRead
	s.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return f, nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Flush implements [audio.Flusher] by discarding Backlog.
func (s *Source) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Flushes++
	n := len(s.Backlog)
	s.Backlog = nil
	return n
}

// Remaining reports how many frames have not been read yet.
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Frames) - s.pos
}

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records one [Player.Play] invocation.
type PlayCall struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Player is a mock [audio.Player].
type Player struct {
	mu sync.Mutex

	// Err is returned by Play.
	Err error

	// Calls records every Play invocation.
	Calls []PlayCall
}

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, pcm []byte, sampleRate, channels int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, PlayCall{PCM: append([]byte(nil), pcm...), SampleRate: sampleRate, Channels: channels})
	return p.Err
}

// PlayCalls returns a copy of the recorded calls.
func (p *Player) PlayCalls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.Calls))
	copy(out, p.Calls)
	return out
}

// ─── Frame helpers ────────────────────────────────────────────────────────────

// Silence returns a mono frame of zero samples lasting d.
func Silence(sampleRate int, d time.Duration) audio.Frame {
	return Tone(sampleRate, d, 0)
}

// Tone returns a mono frame lasting d whose samples alternate between +amp and
// -amp, giving an RMS of exactly amp.
func Tone(sampleRate int, d time.Duration, amp int16) audio.Frame {
	n := int(int64(sampleRate) * int64(d) / int64(time.Second))
	buf := make([]byte, n*audio.BytesPerSample)
	for i := range n {
		v := amp
		if i%2 == 1 {
			v = -amp
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return audio.Frame{Data: buf, SampleRate: sampleRate, Channels: 1}
}

var (
	_ audio.Source  = (*Source)(nil)
	_ audio.Flusher = (*Source)(nil)
	_ audio.Player  = (*Player)(nil)
)
