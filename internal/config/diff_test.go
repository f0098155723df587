package config_test

import (
	"slices"
	"testing"

	"github.com/SalahAli20/ADCAI/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	a, b := config.Default(), config.Default()
	if d := config.Diff(a, b); !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	a, b := config.Default(), config.Default()
	b.Server.LogLevel = config.LogDebug

	d := config.Diff(a, b)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level change not detected: %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level should apply live, got restart list %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	a, b := config.Default(), config.Default()
	b.Server.ListenAddr = ":9090"
	b.Providers.LLM.Model = "gpt-4o"
	b.Providers.TTS.Options = map[string]any{"voice": "en+f3"}
	b.Audio.Capture = []string{"sox", "-d"}
	b.Telemetry.Enabled = false

	d := config.Diff(a, b)
	want := []string{"server.listen_addr", "providers.llm", "providers.tts", "audio", "telemetry"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.LogLevelChanged {
		t.Error("log level did not change")
	}
}

func TestDiff_ProviderOptionValue(t *testing.T) {
	t.Parallel()
	a, b := config.Default(), config.Default()
	a.Providers.STT.Options = map[string]any{"credentials_file": "a.json"}
	b.Providers.STT.Options = map[string]any{"credentials_file": "b.json"}

	d := config.Diff(a, b)
	if !slices.Contains(d.RestartRequired, "providers.stt") {
		t.Errorf("option change not detected: %v", d.RestartRequired)
	}
}
