// Package audio provides microphone capture and playback for the exam
// simulator.
//
// The two primary abstractions are:
//
//   - [Source]: a live capture device delivering PCM [Frame] values.
//   - [Player]: a blocking playback device for synthesised speech.
//
// [Capturer] sits on top of a Source and turns the raw frame stream into
// individual [Utterance] values: it calibrates its energy threshold against
// ambient noise, waits a bounded time for speech to begin, and stops
// recording after a trailing pause.
//
// All audio is 16-bit signed little-endian PCM.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// ErrSourceClosed is returned by [Source.ReadFrame] after Close.
var ErrSourceClosed = errors.New("audio: source closed")

// Source is a live audio capture device.
//
// ReadFrame blocks until the next frame is available, the source is closed,
// or ctx is cancelled. Implementations need not be safe for concurrent
// readers; the conversation loop is the only consumer.
type Source interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

// Flusher is implemented by sources that buffer audio between reads. Flush
// discards everything captured so far and reports how many frames were
// dropped, so the next ReadFrame returns audio recorded after the call.
type Flusher interface {
	Flush() int
}

// DefaultCaptureCommand records 16 kHz mono PCM from the default ALSA device
// to stdout.
var DefaultCaptureCommand = []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-r", strconv.Itoa(DefaultSampleRate), "-c", "1"}

const (
	// defaultFrameDuration is the block size read from the capture command.
	defaultFrameDuration = 20 * time.Millisecond

	// frameBuffer is how many frames are held for a slow reader before the
	// oldest is dropped.
	frameBuffer = 64
)

// CommandSource captures audio by running an external recorder that writes
// raw PCM to stdout (arecord, sox, ffmpeg, …). The process is started lazily
// on the first ReadFrame and keeps running until Close.
//
// The recorder's output is read continuously so the pipe never backs up.
// At most frameBuffer frames are kept for the reader; older frames are
// dropped. Call Flush before a capture to skip audio recorded while nobody
// was listening.
type CommandSource struct {
	argv       []string
	sampleRate int
	channels   int
	frameBytes int

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout  io.ReadCloser
	closed  bool
	pending error

	frames chan frameResult
}

type frameResult struct {
	frame Frame
	err   error
}

// CommandOption configures a [CommandSource].
type CommandOption func(*CommandSource)

// WithCaptureFormat sets the sample rate and channel count the command
// produces. Defaults to 16000 Hz mono.
func WithCaptureFormat(sampleRate, channels int) CommandOption {
	return func(s *CommandSource) {
		s.sampleRate = sampleRate
		s.channels = channels
	}
}

// NewCommandSource creates a source that runs argv. When argv is empty
// [DefaultCaptureCommand] is used.
func NewCommandSource(argv []string, opts ...CommandOption) (*CommandSource, error) {
	if len(argv) == 0 {
		argv = DefaultCaptureCommand
	}
	s := &CommandSource{
		argv:       argv,
		sampleRate: DefaultSampleRate,
		channels:   1,
	}
	for _, o := range opts {
		o(s)
	}
	if s.sampleRate <= 0 || s.channels <= 0 {
		return nil, fmt.Errorf("audio: invalid capture format %d Hz / %d ch", s.sampleRate, s.channels)
	}
	s.frameBytes = int(defaultFrameDuration.Milliseconds()) * s.sampleRate / 1000 * s.channels * BytesPerSample
	return s, nil
}

// ReadFrame implements [Source].
func (s *CommandSource) ReadFrame(ctx context.Context) (Frame, error) {
	if err := s.start(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	err := s.pending
	s.pending = nil
	s.mu.Unlock()
	if err != nil {
		return Frame{}, err
	}
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case r, ok := <-s.frames:
		if !ok {
			return Frame{}, ErrSourceClosed
		}
		return r.frame, r.err
	}
}

// start launches the capture process and its reader goroutine once.
func (s *CommandSource) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSourceClosed
	}
	if s.cmd != nil {
		return nil
	}

	cmd := exec.Command(s.argv[0], s.argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audio: capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audio: start %q: %w", s.argv[0], err)
	}
	s.cmd = cmd
	s.stdout = stdout
	s.frames = make(chan frameResult, frameBuffer)

	go s.readLoop(stdout, s.frames)
	return nil
}

func (s *CommandSource) readLoop(r io.Reader, out chan frameResult) {
	defer close(out)
	for {
		buf := make([]byte, s.frameBytes)
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				push(out, frameResult{err: fmt.Errorf("audio: read capture: %w", err)})
			}
			return
		}
		push(out, frameResult{frame: Frame{Data: buf, SampleRate: s.sampleRate, Channels: s.channels}})
	}
}

// push queues r, dropping the oldest queued frame when out is full.
func push(out chan frameResult, r frameResult) {
	for {
		select {
		case out <- r:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

// Flush implements [Flusher]. It never blocks.
func (s *CommandSource) Flush() int {
	s.mu.Lock()
	frames := s.frames
	s.mu.Unlock()
	if frames == nil {
		return 0
	}
	n := 0
	for {
		select {
		case r, ok := <-frames:
			if !ok {
				return n
			}
			if r.err != nil {
				// Keep the error for the next ReadFrame.
				s.mu.Lock()
				s.pending = r.err
				s.mu.Unlock()
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Close stops the capture process. Calling Close more than once is safe.
func (s *CommandSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cmd == nil {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.stdout.Close()
	go func() {
		// Drain so the reader goroutine can exit.
		for range s.frames {
		}
	}()
	_ = s.cmd.Wait()
	return nil
}

var (
	_ Source  = (*CommandSource)(nil)
	_ Flusher = (*CommandSource)(nil)
)
