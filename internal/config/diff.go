package config

import "slices"

// ConfigDiff describes what changed between two configs. Only the log level
// can be applied to a running process; every other change is reported so the
// operator knows a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the top-level settings that changed but only take
	// effect on the next start, e.g. "providers.llm" or "server.listen_addr".
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.LogFile != new.Server.LogFile {
		d.RestartRequired = append(d.RestartRequired, "server.log_file")
	}
	if !entryEqual(old.Providers.LLM, new.Providers.LLM) {
		d.RestartRequired = append(d.RestartRequired, "providers.llm")
	}
	if !entryEqual(old.Providers.STT, new.Providers.STT) {
		d.RestartRequired = append(d.RestartRequired, "providers.stt")
	}
	if !entryEqual(old.Providers.TTS, new.Providers.TTS) {
		d.RestartRequired = append(d.RestartRequired, "providers.tts")
	}
	if !audioEqual(old.Audio, new.Audio) {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

// entryEqual compares two provider entries. Options are compared by their
// string form; non-string values only count when their presence changes.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL ||
		a.Model != b.Model || a.Language != b.Language || len(a.Options) != len(b.Options) {
		return false
	}
	for k := range a.Options {
		if _, ok := b.Options[k]; !ok || a.Option(k) != b.Option(k) {
			return false
		}
	}
	return true
}

func audioEqual(a, b AudioConfig) bool {
	return slices.Equal(a.Capture, b.Capture) && slices.Equal(a.Playback, b.Playback) &&
		a.SampleRate == b.SampleRate && a.CalibrateOnce == b.CalibrateOnce
}
