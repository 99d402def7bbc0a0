package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "indicconformer", BaseURL: "http://stt", Options: map[string]any{"timeout": "90s"}},
			LLM: config.ProviderEntry{Name: "openai", Model: "qwen"},
		},
		Tools: config.ToolsConfig{
			MCPServers: []config.MCPServerConfig{{Name: "calc", Transport: "stdio", Command: "calc", Env: map[string]string{"A": "1"}}},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	d := config.Diff(baseConfig(), baseConfig())
	if d.Changed() {
		t.Errorf("expected no hot-reload changes for identical configs, got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("expected no restart sections, got %v", d.RestartRequired)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_HotReloadSections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(config.ConfigDiff) bool
	}{
		{"vad threshold", func(c *config.Config) { c.VAD.Threshold = 0.7 }, func(d config.ConfigDiff) bool { return d.VADChanged }},
		{"sample rate", func(c *config.Config) { c.Audio.SampleRate = 8000 }, func(d config.ConfigDiff) bool { return d.VADChanged }},
		{"bot stop delay", func(c *config.Config) { c.Turn.BotStopDelay = time.Second }, func(d config.ConfigDiff) bool { return d.TurnChanged }},
		{"receive timeout", func(c *config.Config) { c.Session.ReceiveTimeout = time.Minute }, func(d config.ConfigDiff) bool { return d.SessionChanged }},
		{"system prompt", func(c *config.Config) { c.Agent.SystemPrompt = "be brief" }, func(d config.ConfigDiff) bool { return d.AgentChanged }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			new := baseConfig()
			tc.mutate(new)
			d := config.Diff(baseConfig(), new)
			if !tc.check(d) || !d.Changed() {
				t.Errorf("change not detected: %+v", d)
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("hot-reloadable change flagged for restart: %v", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		section string
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9999" }, "server"},
		{"allowed origins", func(c *config.Config) { c.Server.AllowedOrigins = []string{"example.com"} }, "server"},
		{"language", func(c *config.Config) { c.Language.Script = "hin_Deva" }, "language"},
		{"provider option", func(c *config.Config) { c.Providers.STT.Options["timeout"] = "10s" }, "providers"},
		{"provider model", func(c *config.Config) { c.Providers.LLM.Model = "other" }, "providers"},
		{"fallback", func(c *config.Config) { c.Fallbacks.TTS.Name = "indicf5" }, "fallbacks"},
		{"mcp env", func(c *config.Config) { c.Tools.MCPServers[0].Env["A"] = "2" }, "tools"},
		{"web search", func(c *config.Config) { c.Tools.WebSearch.APIKey = "k" }, "tools"},
		{"transcript", func(c *config.Config) { c.Transcript.PostgresDSN = "postgres://x" }, "transcript"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			new := baseConfig()
			tc.mutate(new)
			d := config.Diff(baseConfig(), new)
			if !slices.Contains(d.RestartRequired, tc.section) {
				t.Errorf("RestartRequired = %v, want %q", d.RestartRequired, tc.section)
			}
			if d.Changed() {
				t.Errorf("restart-only change reported as hot-reloadable: %+v", d)
			}
		})
	}
}
