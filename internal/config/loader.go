package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp"},
	"stt": {"google", "whisper", "whisper-native", "openai", "deepgram"},
	"tts": {"espeak", "coqui", "elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. An empty path returns [Default].
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, Validate(cfg)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// against the process environment, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), os.Getenv)

	cfg := &Config{Telemetry: TelemetryConfig{Enabled: true}}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if lf := cfg.Server.LogFile; lf.Path != "" {
		if lf.MaxSizeMB < 0 || lf.MaxBackups < 0 || lf.MaxAgeDays < 0 {
			errs = append(errs, errors.New("server.log_file: max_size_mb, max_backups and max_age_days must not be negative"))
		}
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.LLM.Model == "" {
		errs = append(errs, errors.New("providers.llm.model is required"))
	}
	if cfg.Providers.LLM.Name == "openai" && cfg.Providers.LLM.APIKey == "" {
		slog.Warn("no OpenAI API key configured; set " + OpenAIKeyEnv + " or providers.llm.api_key")
	}
	switch cfg.Providers.STT.Name {
	case "whisper":
		if cfg.Providers.STT.BaseURL == "" {
			errs = append(errs, errors.New("providers.stt.base_url is required for the whisper provider"))
		}
	case "whisper-native":
		if cfg.Providers.STT.Model == "" && cfg.Providers.STT.Option("model_path") == "" {
			errs = append(errs, errors.New("providers.stt.model must name a model file for the whisper-native provider"))
		}
	case "deepgram":
		if cfg.Providers.STT.APIKey == "" {
			errs = append(errs, errors.New("providers.stt.api_key is required for the deepgram provider"))
		}
	}
	switch cfg.Providers.TTS.Name {
	case "coqui":
		if cfg.Providers.TTS.BaseURL == "" {
			errs = append(errs, errors.New("providers.tts.base_url is required for the coqui provider"))
		}
	case "elevenlabs":
		if cfg.Providers.TTS.APIKey == "" {
			errs = append(errs, errors.New("providers.tts.api_key is required for the elevenlabs provider"))
		}
		if cfg.Providers.TTS.Option("voice") == "" {
			errs = append(errs, errors.New("providers.tts.options.voice is required for the elevenlabs provider"))
		}
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a custom registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
