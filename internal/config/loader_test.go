package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SalahAli20/ADCAI/internal/config"
)

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: 127.0.0.1:9000
  log_level: debug
  log_file:
    path: /tmp/adcsim.log
    max_backups: 3
providers:
  llm:
    name: anthropic
    api_key: key
    model: claude-3
  stt:
    name: whisper
    base_url: http://localhost:8081
    language: en
  tts:
    name: coqui
    base_url: http://localhost:5002
    options:
      api_mode: standard
audio:
  capture: [sox, -d, -t, raw, -]
  sample_rate: 48000
  calibrate_once: true
telemetry:
  enabled: false
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Server.LogFile.MaxSizeMB != 10 {
		t.Errorf("log_file.max_size_mb default: got %d, want 10", cfg.Server.LogFile.MaxSizeMB)
	}
	if cfg.Providers.LLM.Name != "anthropic" || cfg.Providers.LLM.Model != "claude-3" {
		t.Errorf("llm: got %+v", cfg.Providers.LLM)
	}
	if cfg.Providers.STT.BaseURL != "http://localhost:8081" {
		t.Errorf("stt.base_url: got %q", cfg.Providers.STT.BaseURL)
	}
	if got := cfg.Providers.TTS.Option("api_mode"); got != "standard" {
		t.Errorf("tts api_mode: got %q", got)
	}
	if len(cfg.Audio.Capture) != 5 || cfg.Audio.Capture[0] != "sox" {
		t.Errorf("audio.capture: got %v", cfg.Audio.Capture)
	}
	if cfg.Audio.SampleRate != 48000 || !cfg.Audio.CalibrateOnce {
		t.Errorf("audio: got %+v", cfg.Audio)
	}
	if cfg.Telemetry.Enabled {
		t.Error("telemetry.enabled: got true, want false")
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4" {
		t.Errorf("llm: got %s/%s, want openai/gpt-4", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("telemetry should default to enabled when the section is absent")
	}
}

func TestLoadFromReader_ExpandsEnvironment(t *testing.T) {
	t.Setenv("ADCSIM_TEST_KEY", "sk-from-env")
	yaml := `
providers:
  llm:
    name: openai
    api_key: ${ADCSIM_TEST_KEY}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("api_key: got %q, want %q", cfg.Providers.LLM.APIKey, "sk-from-env")
	}
}

func TestLoadFromReader_OpenAIKeyFallsBackToEnvironment(t *testing.T) {
	t.Setenv(config.OpenAIKeyEnv, "sk-ambient")
	yaml := `
providers:
  stt:
    name: openai
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-ambient" || cfg.Providers.STT.APIKey != "sk-ambient" {
		t.Errorf("api keys: llm %q, stt %q, want both from %s",
			cfg.Providers.LLM.APIKey, cfg.Providers.STT.APIKey, config.OpenAIKeyEnv)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_adr: :9000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "listen_adr") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
providers:
  stt:
    name: whisper
  tts:
    name: coqui
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, want := range []string{"server.log_level", "providers.stt.base_url", "providers.tts.base_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_WhisperNativeNeedsModel(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.STT = config.ProviderEntry{Name: "whisper-native"}
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected error for whisper-native without a model, got nil")
	}
	cfg.Providers.STT.Options = map[string]any{"model_path": "/models/ggml-base.en.bin"}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("unexpected error with model_path option: %v", err)
	}
}

func TestValidate_CloudSpeechNeedsCredentials(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.STT = config.ProviderEntry{Name: "deepgram"}
	cfg.Providers.TTS = config.ProviderEntry{Name: "elevenlabs", APIKey: "xi"}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, want := range []string{"providers.stt.api_key", "providers.tts.options.voice"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}

	cfg.Providers.STT.APIKey = "dg"
	cfg.Providers.TTS.Options = map[string]any{"voice": "rachel"}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("unexpected error with credentials set: %v", err)
	}
}

func TestValidate_NegativeRotationValues(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.LogFile = config.LogFileConfig{Path: "adcsim.log", MaxSizeMB: 10, MaxBackups: -1}
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected error for negative max_backups, got nil")
	}
}

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.TTS.Name != "espeak" {
		t.Errorf("tts: got %q, want espeak", cfg.Providers.TTS.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}
