package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SalahAli20/ADCAI/internal/observe"
	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt"
)

// Listener captures one student utterance from a live source and hands it to
// a recognizer.
type Listener struct {
	src        audio.Source
	capturer   *audio.Capturer
	recognizer stt.Recognizer
	metrics    *observe.Metrics

	waitTimeout      time.Duration
	recognizeTimeout time.Duration
	calibrateEach    bool
	calibrated       bool
}

// ListenerOption configures a [Listener].
type ListenerOption func(*Listener)

// WithCapturer replaces the default energy-based capturer.
func WithCapturer(c *audio.Capturer) ListenerOption {
	return func(l *Listener) { l.capturer = c }
}

// WithWaitTimeout bounds the wait for speech onset. Defaults to 5 s.
func WithWaitTimeout(d time.Duration) ListenerOption {
	return func(l *Listener) { l.waitTimeout = d }
}

// WithRecognizeTimeout bounds each recognition call. Defaults to 30 s.
func WithRecognizeTimeout(d time.Duration) ListenerOption {
	return func(l *Listener) { l.recognizeTimeout = d }
}

// WithCalibrateOnce calibrates only before the first capture instead of
// before every one.
func WithCalibrateOnce() ListenerOption {
	return func(l *Listener) { l.calibrateEach = false }
}

// WithListenerMetrics records capture and recognition latency on m.
func WithListenerMetrics(m *observe.Metrics) ListenerOption {
	return func(l *Listener) { l.metrics = m }
}

// NewListener creates a Listener reading src and recognising with rec.
func NewListener(src audio.Source, rec stt.Recognizer, opts ...ListenerOption) (*Listener, error) {
	if src == nil {
		return nil, errors.New("exam: audio source must not be nil")
	}
	if rec == nil {
		return nil, errors.New("exam: recognizer must not be nil")
	}
	l := &Listener{
		src:              src,
		recognizer:       rec,
		waitTimeout:      DefaultListenTimeout,
		recognizeTimeout: defaultRecognizeTimeout,
		calibrateEach:    true,
	}
	for _, o := range opts {
		o(l)
	}
	if l.capturer == nil {
		l.capturer = audio.NewCapturer()
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l, nil
}

// Capture calibrates against ambient noise and records one utterance. Audio
// the source buffered before the call, such as the patient's last reply, is
// discarded first. It returns [audio.ErrWaitTimeout] when the student stays
// silent.
func (l *Listener) Capture(ctx context.Context) (audio.Utterance, error) {
	start := time.Now()
	defer func() { observe.ObserveSince(ctx, l.metrics.CaptureDuration, start) }()

	if f, ok := l.src.(audio.Flusher); ok {
		if n := f.Flush(); n > 0 {
			observe.Logger(ctx).Debug("discarded buffered audio", "frames", n)
		}
	}

	if l.calibrateEach || !l.calibrated {
		if err := l.capturer.Calibrate(ctx, l.src); err != nil {
			return audio.Utterance{}, err
		}
		l.calibrated = true
	}
	return l.capturer.Listen(ctx, l.src, l.waitTimeout)
}

// Recognize transcribes utt. Every failure other than cancellation of ctx
// matches either [stt.ErrUnintelligible] or [stt.ErrUnavailable].
func (l *Listener) Recognize(ctx context.Context, utt audio.Utterance) (string, error) {
	rctx := ctx
	if l.recognizeTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, l.recognizeTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := l.recognizer.Recognize(rctx, utt)
	observe.ObserveSince(ctx, l.metrics.STTDuration, start)
	if err != nil {
		l.metrics.RecordProviderRequest(ctx, "stt", "error")
		switch {
		case ctx.Err() != nil:
			return "", ctx.Err()
		case errors.Is(err, stt.ErrUnintelligible), errors.Is(err, stt.ErrUnavailable):
			return "", err
		default:
			return "", stt.Unavailable(fmt.Errorf("recognize %s of audio: %w", utt.Duration().Round(time.Millisecond), err))
		}
	}
	l.metrics.RecordProviderRequest(ctx, "stt", "ok")
	return res.Text, nil
}
