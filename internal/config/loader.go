package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/tools"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"indicconformer"},
	"translate": {"indictrans"},
	"tts":       {"indicf5"},
	"llm":       {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr         = ":8000"
	DefaultWebSocketPath      = "/ws"
	DefaultSampleRate         = 16000
	DefaultVADThreshold       = 0.5
	DefaultMinSpeechMS        = 250
	DefaultMinSilenceMS       = 1000
	DefaultEnergyFloor        = 200
	DefaultEnergyCeiling      = 2000
	DefaultBotStopDelay       = 500 * time.Millisecond
	DefaultReceiveTimeout     = 120 * time.Second
	DefaultDrainTimeout       = 30 * time.Second
	DefaultMaxMessageBytes    = 1 << 20
	DefaultLanguageCode       = "kn"
	DefaultScript             = "kan_Knda"
	DefaultShortInputGreeting = "ನಮಸ್ಕಾರ, "
	DefaultShortInputWords    = 5
	DefaultMaxSteps           = 6
	DefaultSearchProvider     = "tavily"
	DefaultSearchMaxResults   = 3
	DefaultSearchRate         = 1.0
	DefaultServiceName        = "voice-agent"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ExpandSecrets(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes is [LoadFromReader] over an in-memory document.
func LoadFromBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// ExpandSecrets replaces ${VAR} and $VAR references in API keys and the
// database DSN with environment values, so secrets can stay out of the file.
// Other fields are left alone; prompts may legitimately contain "$".
func ExpandSecrets(cfg *Config) {
	for _, set := range []*ProvidersConfig{&cfg.Providers, &cfg.Fallbacks} {
		for _, e := range []*ProviderEntry{&set.STT, &set.TranslateIndicEn, &set.TranslateEnIndic, &set.TTS, &set.LLM} {
			e.APIKey = os.ExpandEnv(e.APIKey)
		}
	}
	cfg.Tools.WebSearch.APIKey = os.ExpandEnv(cfg.Tools.WebSearch.APIKey)
	cfg.Transcript.PostgresDSN = os.ExpandEnv(cfg.Transcript.PostgresDSN)
}

// ApplyDefaults fills every unset field that has a default. Zero values
// count as unset.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, DefaultListenAddr)
	setDefault(&cfg.Server.LogLevel, LogInfo)
	setDefault(&cfg.Server.WebSocketPath, DefaultWebSocketPath)

	setDefault(&cfg.Audio.SampleRate, DefaultSampleRate)

	setDefault(&cfg.VAD.Threshold, DefaultVADThreshold)
	setDefault(&cfg.VAD.MinSpeechMS, DefaultMinSpeechMS)
	setDefault(&cfg.VAD.MinSilenceMS, DefaultMinSilenceMS)
	setDefault(&cfg.VAD.Classifier, ClassifierEnergy)
	setDefault(&cfg.VAD.EnergyFloor, DefaultEnergyFloor)
	setDefault(&cfg.VAD.EnergyCeiling, DefaultEnergyCeiling)

	setDefault(&cfg.Turn.BotStopDelay, DefaultBotStopDelay)

	setDefault(&cfg.Session.ReceiveTimeout, DefaultReceiveTimeout)
	setDefault(&cfg.Session.DrainTimeout, DefaultDrainTimeout)
	setDefault(&cfg.Session.MaxMessageBytes, DefaultMaxMessageBytes)

	setDefault(&cfg.Language.Code, DefaultLanguageCode)
	setDefault(&cfg.Language.Script, DefaultScript)
	setDefault(&cfg.Language.ShortInputGreeting, DefaultShortInputGreeting)
	setDefault(&cfg.Language.ShortInputWords, DefaultShortInputWords)

	setDefault(&cfg.Agent.MaxSteps, DefaultMaxSteps)

	if cfg.Tools.WebSearch.APIKey != "" {
		setDefault(&cfg.Tools.WebSearch.Provider, DefaultSearchProvider)
		setDefault(&cfg.Tools.WebSearch.MaxResults, DefaultSearchMaxResults)
		setDefault(&cfg.Tools.WebSearch.RequestsPerSecond, DefaultSearchRate)
	}

	setDefault(&cfg.Telemetry.ServiceName, DefaultServiceName)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.WebSocketPath != "" && !strings.HasPrefix(cfg.Server.WebSocketPath, "/") {
		errs = append(errs, fmt.Errorf("server.websocket_path %q must start with /", cfg.Server.WebSocketPath))
	}

	// Audio and VAD
	if cfg.Audio.SampleRate != 8000 && cfg.Audio.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is invalid; valid values: 8000, 16000", cfg.Audio.SampleRate))
	}
	if cfg.VAD.Threshold <= 0 || cfg.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold %.2f is out of range (0, 1]", cfg.VAD.Threshold))
	}
	if cfg.VAD.MinSpeechMS < 0 {
		errs = append(errs, fmt.Errorf("vad.min_speech_ms %d must not be negative", cfg.VAD.MinSpeechMS))
	}
	if cfg.VAD.MinSilenceMS < 0 {
		errs = append(errs, fmt.Errorf("vad.min_silence_ms %d must not be negative", cfg.VAD.MinSilenceMS))
	}
	if cfg.VAD.Classifier != "" && !cfg.VAD.Classifier.IsValid() {
		errs = append(errs, fmt.Errorf("vad.classifier %q is invalid; valid values: energy", cfg.VAD.Classifier))
	}
	if cfg.VAD.EnergyCeiling <= cfg.VAD.EnergyFloor {
		errs = append(errs, fmt.Errorf("vad.energy_ceiling %.0f must be above vad.energy_floor %.0f", cfg.VAD.EnergyCeiling, cfg.VAD.EnergyFloor))
	}
	if cfg.VAD.EnergySmoothing < 0 || cfg.VAD.EnergySmoothing >= 1 {
		errs = append(errs, fmt.Errorf("vad.energy_smoothing %.2f is out of range [0, 1)", cfg.VAD.EnergySmoothing))
	}

	// Turn and session timing
	if cfg.Turn.BotStopDelay < 0 {
		errs = append(errs, fmt.Errorf("turn.bot_stop_delay %s must not be negative", cfg.Turn.BotStopDelay))
	}
	if cfg.Session.ReceiveTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.receive_timeout %s must not be negative", cfg.Session.ReceiveTimeout))
	}
	if cfg.Session.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.drain_timeout %s must not be negative", cfg.Session.DrainTimeout))
	}
	if cfg.Session.MaxMessageBytes < 0 {
		errs = append(errs, fmt.Errorf("session.max_message_bytes %d must not be negative", cfg.Session.MaxMessageBytes))
	}

	// Providers. Every collaborator is required; fallbacks are optional.
	required := []struct {
		path, kind string
		entry      ProviderEntry
	}{
		{"providers.stt", "stt", cfg.Providers.STT},
		{"providers.translate_indic_en", "translate", cfg.Providers.TranslateIndicEn},
		{"providers.translate_en_indic", "translate", cfg.Providers.TranslateEnIndic},
		{"providers.tts", "tts", cfg.Providers.TTS},
		{"providers.llm", "llm", cfg.Providers.LLM},
	}
	for _, p := range required {
		if p.entry.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", p.path))
			continue
		}
		validateProviderName(p.kind, p.entry.Name)
		if p.kind != "llm" && p.entry.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required", p.path))
		}
	}
	fallbacks := []struct {
		path, kind string
		entry      ProviderEntry
	}{
		{"fallbacks.stt", "stt", cfg.Fallbacks.STT},
		{"fallbacks.translate_indic_en", "translate", cfg.Fallbacks.TranslateIndicEn},
		{"fallbacks.translate_en_indic", "translate", cfg.Fallbacks.TranslateEnIndic},
		{"fallbacks.tts", "tts", cfg.Fallbacks.TTS},
		{"fallbacks.llm", "llm", cfg.Fallbacks.LLM},
	}
	for _, p := range fallbacks {
		if p.entry.Name != "" {
			validateProviderName(p.kind, p.entry.Name)
		}
	}

	// Agent
	if cfg.Agent.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("agent.max_steps %d must not be negative", cfg.Agent.MaxSteps))
	}
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0, 2]", cfg.Agent.Temperature))
	}

	// Tools
	if ws := cfg.Tools.WebSearch; ws.APIKey != "" && ws.Provider != DefaultSearchProvider {
		errs = append(errs, fmt.Errorf("tools.web_search.provider %q is invalid; valid values: tavily", ws.Provider))
	}
	if ws := cfg.Tools.WebSearch; ws.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("tools.web_search.requests_per_second %.2f must not be negative", ws.RequestsPerSecond))
	}
	if cfg.Tools.WebSearch.APIKey == "" {
		slog.Warn("tools.web_search.api_key is empty; the agent will answer without web search")
	}
	serverNames := make(map[string]int, len(cfg.Tools.MCPServers))
	for i, srv := range cfg.Tools.MCPServers {
		prefix := fmt.Sprintf("tools.mcp_servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := serverNames[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tools.mcp_servers[%d]", prefix, srv.Name, prev))
			}
			serverNames[srv.Name] = i
		}
		if !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == tools.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == tools.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
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
	slog.Warn("unknown provider name; may be a typo or a custom registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
