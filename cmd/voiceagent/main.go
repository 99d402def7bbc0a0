// Command voiceagent serves the Kannada voice assistant over WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/app"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/config"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/observe"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/llm"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/llm/anyllm"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/llm/openai"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/stt"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/stt/indicconformer"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/translate"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/translate/indictrans"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/tts"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/tts/indicf5"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Default per-kind request timeouts, overridable with options.timeout.
const (
	sttTimeout       = 120 * time.Second
	translateTimeout = 60 * time.Second
	ttsTimeout       = 120 * time.Second
	llmTimeout       = 60 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voiceagent: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voiceagent: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := &slog.LevelVar{}
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("voiceagent starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	spans, err := spanExporter(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to create span exporter", "err", err)
		return 1
	}
	telemetry, err := observe.Setup(observe.TelemetryConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Exporter:       spans,
		Global:         true,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg, logger)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers,
		app.WithLogger(logger),
		app.WithLevelVar(level),
		app.WithMetricsHandler(telemetry.MetricsHandler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	printStartupSummary(cfg)

	// ── Serve ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })

	if *watch {
		watcher, err := config.NewWatcher(*configPath, application.Reload, config.WithWatcherLogger(logger))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	runErr := g.Wait()
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("indicconformer", func(entry config.ProviderEntry) (stt.Provider, error) {
		return indicconformer.New(entry.BaseURL,
			indicconformer.WithTimeout(entry.OptionDuration("timeout", sttTimeout)),
			indicconformer.WithDecoding(entry.OptionString("decoding", "ctc")),
		)
	})

	// ── Translation ───────────────────────────────────────────────────────────
	reg.RegisterTranslator("indictrans", func(entry config.ProviderEntry) (translate.Provider, error) {
		return indictrans.New(entry.BaseURL,
			indictrans.WithTimeout(entry.OptionDuration("timeout", translateTimeout)),
		)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("indicf5", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []indicf5.Option{indicf5.WithTimeout(entry.OptionDuration("timeout", ttsTimeout))}
		if path := entry.OptionString("reference_audio", ""); path != "" {
			clip, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("indicf5: read reference audio: %w", err)
			}
			opts = append(opts, indicf5.WithReference(clip, entry.OptionString("reference_text", "")))
		}
		return indicf5.New(entry.BaseURL, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// "openai" talks to any OpenAI-compatible endpoint (Nebius by default);
	// the remaining backends go through any-llm-go.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []openai.Option{openai.WithTimeout(entry.OptionDuration("timeout", llmTimeout))}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptionString("organization", ""); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})
	for _, backend := range anyllm.Backends {
		if backend == "openai" {
			continue
		}
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       voiceagent: startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Indic→En", cfg.Providers.TranslateIndicEn.Name, "")
	printProvider("En→Indic", cfg.Providers.TranslateEnIndic.Name, "")
	printProvider("TTS", cfg.Providers.TTS.Name, "")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Printf("║  Language        : %-19s ║\n", cfg.Language.Code+" / "+cfg.Language.Script)
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.Tools.MCPServers))
	if cfg.Tools.WebSearch.APIKey != "" {
		fmt.Printf("║  Web search      : %-19s ║\n", cfg.Tools.WebSearch.Provider)
	} else {
		fmt.Printf("║  Web search      : %-19s ║\n", "(disabled)")
	}
	if cfg.Transcript.PostgresDSN != "" {
		fmt.Printf("║  Transcripts     : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Transcripts     : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr+cfg.Server.WebSocketPath)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// spanExporter returns an OTLP/gRPC exporter when a collector is configured,
// or nil to keep spans in-process.
func spanExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	if cfg.OTLPEndpoint == "" {
		return nil, nil
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter %s: %w", cfg.OTLPEndpoint, err)
	}
	slog.Info("exporting spans", "endpoint", cfg.OTLPEndpoint)
	return exp, nil
}
