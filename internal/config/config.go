// Package config defines the adcsim configuration schema and the YAML loader.
//
// A configuration file is optional. [Default] returns the settings the
// simulator has always shipped with (OpenAI GPT-4, Google Speech and a local
// espeak voice), and a file only needs to name what it changes.
package config

import (
	"log/slog"
	"os"
	"time"
)

// LogLevel controls the minimum severity of emitted log records.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a [slog.Level]. Unknown and empty values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root of the adcsim configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds the web server and logging settings.
type ServerConfig struct {
	// ListenAddr is the address "adcsim serve" binds to. Defaults to ":8080".
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// LogFile, when Path is set, copies log output to a rotating file.
	LogFile LogFileConfig `yaml:"log_file"`

	// ShutdownTimeout bounds graceful HTTP shutdown. Defaults to 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogFileConfig configures log rotation.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ProvidersConfig selects the backend for each remote or local service.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry names a provider and carries its connection settings.
// Options holds backend-specific extras (for example "credentials_file" for
// Google Speech or "voice" for espeak).
type ProviderEntry struct {
	Name     string         `yaml:"name"`
	APIKey   string         `yaml:"api_key"`
	BaseURL  string         `yaml:"base_url"`
	Model    string         `yaml:"model"`
	Language string         `yaml:"language"`
	Options  map[string]any `yaml:"options"`
}

// Option returns the string value stored under key in Options, or "".
func (e ProviderEntry) Option(key string) string {
	v, ok := e.Options[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// AudioConfig describes the capture and playback commands.
type AudioConfig struct {
	// Capture is the argv of a recorder writing raw PCM16LE to stdout.
	// Empty uses arecord.
	Capture []string `yaml:"capture"`

	// Playback is the argv of a player reading raw PCM16LE from stdin.
	// Empty uses aplay with the format of each clip.
	Playback []string `yaml:"playback"`

	// SampleRate of the capture command output. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// CalibrateOnce measures ambient noise only before the first turn
	// instead of before every turn.
	CalibrateOnce bool `yaml:"calibrate_once"`
}

// TelemetryConfig toggles the OpenTelemetry metrics pipeline. Enabled
// defaults to true when the section is absent.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

const (
	DefaultListenAddr      = ":8080"
	DefaultSampleRate      = 16000
	DefaultShutdownTimeout = 15 * time.Second

	// OpenAIKeyEnv is the environment variable holding the OpenAI API key.
	OpenAIKeyEnv = "OPENAI_API_KEY"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Providers: ProvidersConfig{
			LLM: ProviderEntry{Name: "openai", Model: "gpt-4"},
			STT: ProviderEntry{Name: "google"},
			TTS: ProviderEntry{Name: "espeak"},
		},
		Telemetry: TelemetryConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values that have a documented default.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.LogFile.Path != "" && c.Server.LogFile.MaxSizeMB == 0 {
		c.Server.LogFile.MaxSizeMB = 10
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
	if c.Providers.LLM.Name == "" {
		c.Providers.LLM.Name = "openai"
	}
	if c.Providers.LLM.Model == "" {
		c.Providers.LLM.Model = "gpt-4"
	}
	if c.Providers.STT.Name == "" {
		c.Providers.STT.Name = "google"
	}
	if c.Providers.TTS.Name == "" {
		c.Providers.TTS.Name = "espeak"
	}

	// OpenAI backends read the key from the process environment unless the
	// file sets one.
	for _, e := range []*ProviderEntry{&c.Providers.LLM, &c.Providers.STT} {
		if e.Name == "openai" && e.APIKey == "" {
			e.APIKey = os.Getenv(OpenAIKeyEnv)
		}
	}
}
