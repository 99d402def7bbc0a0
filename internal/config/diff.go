package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked. Everything else
// (listen address, providers, tools, transcript store) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is true if any segmenter tuning or the sample rate changed.
	VADChanged bool

	// TurnChanged is true if the bot stop delay changed.
	TurnChanged bool

	// SessionChanged is true if any per-connection limit changed.
	SessionChanged bool

	// AgentChanged is true if the system prompt, step budget, temperature
	// or fallback replies changed.
	AgentChanged bool

	// RestartRequired lists changed sections that only take effect after a
	// restart.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VADChanged || d.TurnChanged || d.SessionChanged || d.AgentChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.VADChanged = old.VAD != new.VAD || old.Audio != new.Audio
	d.TurnChanged = old.Turn != new.Turn
	d.SessionChanged = old.Session != new.Session
	d.AgentChanged = old.Agent != new.Agent

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.WebSocketPath != new.Server.WebSocketPath ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Language != new.Language {
		d.RestartRequired = append(d.RestartRequired, "language")
	}
	if !equalProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !equalProviders(old.Fallbacks, new.Fallbacks) {
		d.RestartRequired = append(d.RestartRequired, "fallbacks")
	}
	if !equalTools(old.Tools, new.Tools) {
		d.RestartRequired = append(d.RestartRequired, "tools")
	}
	if old.Transcript != new.Transcript {
		d.RestartRequired = append(d.RestartRequired, "transcript")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func equalProviders(a, b ProvidersConfig) bool {
	return equalEntry(a.STT, b.STT) &&
		equalEntry(a.TranslateIndicEn, b.TranslateIndicEn) &&
		equalEntry(a.TranslateEnIndic, b.TranslateEnIndic) &&
		equalEntry(a.TTS, b.TTS) &&
		equalEntry(a.LLM, b.LLM)
}

func equalEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return len(a.Options) == len(b.Options) && (len(a.Options) == 0 || reflect.DeepEqual(a.Options, b.Options))
}

func equalTools(a, b ToolsConfig) bool {
	if a.WebSearch != b.WebSearch || len(a.MCPServers) != len(b.MCPServers) {
		return false
	}
	for i := range a.MCPServers {
		x, y := a.MCPServers[i], b.MCPServers[i]
		if x.Name != y.Name || x.Transport != y.Transport || x.Command != y.Command || x.URL != y.URL {
			return false
		}
		if !maps.Equal(x.Env, y.Env) {
			return false
		}
	}
	return true
}
