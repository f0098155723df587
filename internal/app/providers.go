package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"google.golang.org/api/option"

	"github.com/SalahAli20/ADCAI/internal/config"
	"github.com/SalahAli20/ADCAI/internal/resilience"
	"github.com/SalahAli20/ADCAI/pkg/audio"
	"github.com/SalahAli20/ADCAI/pkg/provider/llm"
	"github.com/SalahAli20/ADCAI/pkg/provider/llm/anyllm"
	oaillm "github.com/SalahAli20/ADCAI/pkg/provider/llm/openai"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt/deepgram"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt/google"
	oaistt "github.com/SalahAli20/ADCAI/pkg/provider/stt/openai"
	"github.com/SalahAli20/ADCAI/pkg/provider/stt/whisper"
	"github.com/SalahAli20/ADCAI/pkg/provider/tts"
	"github.com/SalahAli20/ADCAI/pkg/provider/tts/coqui"
	"github.com/SalahAli20/ADCAI/pkg/provider/tts/elevenlabs"
	"github.com/SalahAli20/ADCAI/pkg/provider/tts/espeak"
)

// Providers holds the backends one process uses for every session.
type Providers struct {
	LLM llm.Provider

	// STT is the configured recogniser behind a circuit breaker.
	STT *resilience.GuardedRecognizer

	TTS tts.Speaker

	// NewSource opens the capture device for a session. Each session closes
	// the source it was given.
	NewSource func() (audio.Source, error)

	closers []io.Closer
}

// Close releases backends that hold connections or loaded models.
func (p *Providers) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// RegisterBuiltinProviders wires every shipped backend into reg. Speakers
// that produce audio data play it through player.
func RegisterBuiltinProviders(reg *config.Registry, player audio.Player) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if e.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(e.BaseURL))
		}
		if org := e.Option("organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(e.APIKey, e.Model, opts...)
	})

	for _, name := range anyllm.Supported {
		reg.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(name, e.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("google", func(e config.ProviderEntry) (stt.Recognizer, error) {
		var clientOpts []option.ClientOption
		if f := e.Option("credentials_file"); f != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(f))
		}
		if e.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(e.APIKey))
		}
		var opts []google.Option
		if e.Language != "" {
			opts = append(opts, google.WithLanguage(e.Language))
		}
		if e.Model != "" {
			opts = append(opts, google.WithModel(e.Model))
		}
		return google.New(context.Background(), clientOpts, opts...)
	})

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Recognizer, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if e.Language != "" {
			opts = append(opts, whisper.WithLanguage(e.Language))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry) (stt.Recognizer, error) {
		modelPath := e.Model
		if modelPath == "" {
			modelPath = e.Option("model_path")
		}
		var opts []whisper.NativeOption
		if e.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(e.Language))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Recognizer, error) {
		var opts []oaistt.Option
		if e.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, oaistt.WithModel(e.Model))
		}
		if e.Language != "" {
			opts = append(opts, oaistt.WithLanguage(e.Language))
		}
		return oaistt.New(e.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Recognizer, error) {
		var opts []deepgram.Option
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if e.Language != "" {
			opts = append(opts, deepgram.WithLanguage(e.Language))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("espeak", func(e config.ProviderEntry) (tts.Speaker, error) {
		opts := []espeak.Option{espeak.WithRate(tts.DefaultRate)}
		if cmd := e.Option("command"); cmd != "" {
			opts = append(opts, espeak.WithCommand(cmd))
		}
		if v := e.Option("voice"); v != "" {
			opts = append(opts, espeak.WithVoice(v))
		}
		if e.Option("playback") == "player" {
			opts = append(opts, espeak.WithPlayer(player))
		}
		return espeak.New(opts...)
	})

	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Speaker, error) {
		opts := []coqui.Option{coqui.WithPlayer(player)}
		if e.Language != "" {
			opts = append(opts, coqui.WithLanguage(e.Language))
		}
		if mode := e.Option("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if id := e.Option("speaker"); id != "" {
			opts = append(opts, coqui.WithSpeaker(id))
		}
		return coqui.New(e.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Speaker, error) {
		opts := []elevenlabs.Option{elevenlabs.WithPlayer(player)}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if f := e.Option("output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		return elevenlabs.New(e.APIKey, e.Option("voice"), opts...)
	})

	for _, kind := range []string{"llm", "stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// BuildProviders instantiates the providers named in cfg. The recogniser is
// wrapped in a circuit breaker; breakerCfg may be the zero value.
func BuildProviders(cfg *config.Config, reg *config.Registry, breakerCfg resilience.CircuitBreakerConfig) (*Providers, error) {
	ps := &Providers{}

	model, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM = model
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	rec, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	if c, ok := rec.(io.Closer); ok {
		ps.closers = append(ps.closers, c)
	}
	ps.STT = resilience.GuardRecognizer(rec, breakerCfg)
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	speaker, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.TTS = speaker
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	capture := CaptureCommand(cfg.Audio)
	rate := cfg.Audio.SampleRate
	ps.NewSource = func() (audio.Source, error) {
		return audio.NewCommandSource(capture, audio.WithCaptureFormat(rate, 1))
	}
	return ps, nil
}

// NewPlayer returns the playback device described by cfg.
func NewPlayer(cfg config.AudioConfig) audio.Player {
	if len(cfg.Playback) == 0 {
		return &audio.CommandPlayer{}
	}
	argv := cfg.Playback
	return &audio.CommandPlayer{Argv: func(int, int) []string { return argv }}
}

// CaptureCommand returns the configured capture command, or arecord at the
// configured rate.
func CaptureCommand(cfg config.AudioConfig) []string {
	if len(cfg.Capture) > 0 {
		return cfg.Capture
	}
	if cfg.SampleRate == 0 || cfg.SampleRate == audio.DefaultSampleRate {
		return audio.DefaultCaptureCommand
	}
	return []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-r", strconv.Itoa(cfg.SampleRate), "-c", "1"}
}
