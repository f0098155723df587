// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider satisfies stt.Recognizer.
var _ stt.Recognizer = (*NativeProvider)(nil)

// NativeProvider implements stt.Recognizer using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup; every Recognize call gets its own whisper context.
type NativeProvider struct {
	model    whisperlib.Model
	language string

	// mu serialises inference; a single model saturates the CPU on its own.
	mu sync.Mutex
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Recognize implements stt.Recognizer. whisper.cpp inference cannot be
// interrupted, so a cancelled ctx returns immediately while the running
// inference finishes in the background and its result is discarded.
func (p *NativeProvider) Recognize(ctx context.Context, utt audio.Utterance) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}
	samples := audio.PCMToFloat32(audio.Normalize(utt.PCM, utt.SampleRate, utt.Channels, sampleRate), 1)

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := p.infer(samples)
		done <- outcome{text, err}
	}()

	select {
	case <-ctx.Done():
		return stt.Result{}, ctx.Err()
	case o := <-done:
		if o.err != nil {
			return stt.Result{}, fmt.Errorf("whisper: %w", stt.Unavailable(o.err))
		}
		text := cleanTranscript(o.text)
		if text == "" {
			return stt.Result{}, stt.ErrUnintelligible
		}
		return stt.Result{Text: text}, nil
	}
}

// infer runs whisper.cpp inference on a fresh context and returns the
// concatenated segment text.
func (p *NativeProvider) infer(samples []float32) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
