package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// ErrWaitTimeout is returned by [Capturer.Listen] when no speech begins
// within the wait timeout.
var ErrWaitTimeout = errors.New("audio: listening timed out while waiting for phrase to start")

const (
	// defaultEnergyThreshold is the RMS level (16-bit PCM units) above which a
	// frame counts as speech before any calibration has run.
	defaultEnergyThreshold = 300.0

	// minEnergyThreshold keeps a quiet room from turning every breath into
	// speech after calibration.
	minEnergyThreshold = 50.0

	defaultDynamicRatio   = 1.5
	defaultCalibration    = time.Second
	defaultPauseThreshold = 800 * time.Millisecond
	defaultPreRoll        = 300 * time.Millisecond
	defaultPhraseLimit    = 30 * time.Second
)

// CaptureOption configures a [Capturer].
type CaptureOption func(*Capturer)

// WithEnergyThreshold sets the initial speech threshold used until
// [Capturer.Calibrate] runs.
func WithEnergyThreshold(rms float64) CaptureOption {
	return func(c *Capturer) { c.threshold = rms }
}

// WithPauseThreshold sets how much trailing silence ends a phrase.
// Defaults to 800 ms.
func WithPauseThreshold(d time.Duration) CaptureOption {
	return func(c *Capturer) { c.pause = d }
}

// WithPhraseLimit caps the length of a single utterance. Defaults to 30 s.
func WithPhraseLimit(d time.Duration) CaptureOption {
	return func(c *Capturer) { c.phraseLimit = d }
}

// WithCalibrationDuration sets how much ambient audio Calibrate samples.
// Defaults to 1 s.
func WithCalibrationDuration(d time.Duration) CaptureOption {
	return func(c *Capturer) { c.calibration = d }
}

// Capturer segments a frame stream into utterances with an energy-based
// speech detector. Elapsed time is measured in audio time (the duration of
// frames consumed), not wall-clock time, so behaviour is deterministic for a
// given input.
//
// A Capturer is not safe for concurrent use.
type Capturer struct {
	threshold    float64
	dynamicRatio float64
	calibration  time.Duration
	pause        time.Duration
	preRoll      time.Duration
	phraseLimit  time.Duration
}

// NewCapturer returns a Capturer with the default detector settings.
func NewCapturer(opts ...CaptureOption) *Capturer {
	c := &Capturer{
		threshold:    defaultEnergyThreshold,
		dynamicRatio: defaultDynamicRatio,
		calibration:  defaultCalibration,
		pause:        defaultPauseThreshold,
		preRoll:      defaultPreRoll,
		phraseLimit:  defaultPhraseLimit,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Threshold returns the current speech energy threshold.
func (c *Capturer) Threshold() float64 { return c.threshold }

// Calibrate samples ambient audio from src and raises or lowers the speech
// threshold to sit above the measured noise floor.
func (c *Capturer) Calibrate(ctx context.Context, src Source) error {
	var (
		elapsed time.Duration
		sumSq   float64
		frames  int
	)
	for elapsed < c.calibration {
		f, err := src.ReadFrame(ctx)
		if err != nil {
			return fmt.Errorf("audio: calibrate: %w", err)
		}
		rms := RMS(f.Data)
		sumSq += rms * rms
		frames++
		elapsed += f.Duration()
		if f.Duration() == 0 {
			// A zero-length frame would never advance the clock.
			break
		}
	}
	if frames == 0 {
		return nil
	}
	ambient := math.Sqrt(sumSq / float64(frames))
	c.threshold = max(minEnergyThreshold, ambient*c.dynamicRatio)
	slog.Debug("ambient noise calibrated", "ambient_rms", ambient, "threshold", c.threshold)
	return nil
}

// Listen records one utterance from src. It returns [ErrWaitTimeout] if no
// frame crosses the threshold within timeout (timeout <= 0 waits forever).
// Recording stops after the pause threshold of trailing silence or when the
// phrase limit is reached.
func (c *Capturer) Listen(ctx context.Context, src Source, timeout time.Duration) (Utterance, error) {
	var (
		waited  time.Duration
		preroll [][]byte
		preDur  time.Duration
		rate    int
		chans   int
	)

	// Phase 1: wait for the speech onset.
	var first Frame
	for {
		f, err := src.ReadFrame(ctx)
		if err != nil {
			return Utterance{}, fmt.Errorf("audio: listen: %w", err)
		}
		rate, chans = f.SampleRate, f.Channels
		if RMS(f.Data) >= c.threshold {
			first = f
			break
		}
		d := f.Duration()
		waited += d
		preroll = append(preroll, f.Data)
		preDur += d
		for preDur > c.preRoll && len(preroll) > 1 {
			preDur -= PCMDuration(len(preroll[0]), rate, chans)
			preroll = preroll[1:]
		}
		if timeout > 0 && waited >= timeout {
			return Utterance{}, ErrWaitTimeout
		}
	}

	var pcm []byte
	for _, p := range preroll {
		pcm = append(pcm, p...)
	}
	pcm = append(pcm, first.Data...)

	// Phase 2: record until a trailing pause or the phrase limit.
	var (
		recorded = first.Duration()
		silence  time.Duration
	)
	for recorded < c.phraseLimit {
		f, err := src.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceClosed) {
				break
			}
			return Utterance{}, fmt.Errorf("audio: listen: %w", err)
		}
		pcm = append(pcm, f.Data...)
		d := f.Duration()
		recorded += d
		if RMS(f.Data) < c.threshold {
			silence += d
			if silence >= c.pause {
				break
			}
		} else {
			silence = 0
		}
	}

	return Utterance{PCM: pcm, SampleRate: rate, Channels: chans}, nil
}
