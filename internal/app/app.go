// Package app wires the voice agent's subsystems into a running HTTP server.
//
// The App struct owns the full lifecycle: New connects the tool host, the
// transcript store, the agent and the WebSocket session handler, Serve runs
// the HTTP server until its context ends, and Shutdown tears everything down
// in order. Reload applies a hot-reloaded config to live subsystems.
//
// For testing, inject doubles via functional options (WithToolbox,
// WithTranscripts, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/agent"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/config"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/health"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/observe"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/pipeline"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/session"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/tools"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/transcript"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/vad"
)

// Server timeouts. Sessions are long-lived WebSockets, so only the header
// read is bounded.
const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
	transcriptConnect = 10 * time.Second
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       atomic.Pointer[config.Config]
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	toolbox     agent.Toolbox
	transcripts transcript.Writer
	agent       *agent.Agent
	sessions    *session.Handler
	health      *health.Handler
	handler     http.Handler

	metrics        *observe.Metrics
	metricsHandler http.Handler
	log            *slog.Logger
	level          *slog.LevelVar
	checkers       []health.Checker

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithToolbox injects the agent's tools instead of building a host from
// the tools config section.
func WithToolbox(t agent.Toolbox) Option {
	return func(a *App) { a.toolbox = t }
}

// WithTranscripts injects a transcript writer instead of opening the
// configured PostgreSQL store.
func WithTranscripts(w transcript.Writer) Option {
	return func(a *App) { a.transcripts = w }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler, normally with
// observe.Telemetry.MetricsHandler. Defaults to promhttp.Handler() on the
// default Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogger sets the base logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets Reload change the log level of the process logger.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithCheckers adds readiness checks on top of the providers' own.
func WithCheckers(c ...health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, c...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and providers. The providers come from
// BuildProviders (or test doubles). New connects MCP servers and the
// transcript database synchronously; on error everything opened so far is
// closed again.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.IndicToEnglish == nil ||
		providers.EnglishToIndic == nil || providers.TTS == nil || providers.LLM == nil {
		return nil, errors.New("app: every provider slot must be set")
	}
	a := &App{providers: providers}
	a.cfg.Store(cfg)
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	if err := a.init(ctx); err != nil {
		a.runClosers()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if err := a.initTools(ctx); err != nil {
		return err
	}
	if err := a.initTranscripts(ctx); err != nil {
		return err
	}

	cfg := a.cfg.Load()
	a.agent = agent.New(a.providers.LLM, a.toolbox, agentConfig(cfg))

	sessions, err := session.NewHandler(sessionConfig(cfg), a.newPipeline,
		session.WithTranscripts(a.transcripts),
		session.WithMetrics(a.metrics),
		session.WithLogger(a.log),
		session.WithOriginPatterns(cfg.Server.AllowedOrigins...),
	)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.sessions = sessions

	checkers := append(append([]health.Checker(nil), a.providers.Checkers...), a.checkers...)
	a.health = health.New(checkers)

	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", a.metricsHandler)
	mux.Handle(cfg.Server.WebSocketPath, a.sessions)
	a.handler = observe.Middleware(a.metrics,
		observe.WithAccessLog(a.log),
		observe.WithQuietRoutes("GET /health", "GET /healthz", "GET /readyz", "GET /metrics"),
	)(mux)
	return nil
}

func (a *App) initTools(ctx context.Context) error {
	if a.toolbox != nil {
		return nil
	}
	cfg := a.cfg.Load().Tools
	host := tools.New()
	a.closers = append(a.closers, host.Close)
	a.toolbox = host

	if ws := cfg.WebSearch; ws.APIKey != "" {
		opts := []tools.SearchOption{tools.WithSearchRate(ws.RequestsPerSecond)}
		if ws.Endpoint != "" {
			opts = append(opts, tools.WithSearchEndpoint(ws.Endpoint))
		}
		if err := host.RegisterBuiltin(tools.WebSearch(ws.APIKey, ws.MaxResults, opts...)); err != nil {
			return fmt.Errorf("app: register web search: %w", err)
		}
		a.log.Info("registered builtin tool", "name", "web_search", "provider", ws.Provider)
	}

	for _, srv := range cfg.MCPServers {
		err := host.RegisterServer(ctx, tools.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		})
		if err != nil {
			return fmt.Errorf("app: register MCP server %q: %w", srv.Name, err)
		}
		a.log.Info("registered MCP server", "name", srv.Name, "transport", srv.Transport)
	}
	return nil
}

func (a *App) initTranscripts(ctx context.Context) error {
	if a.transcripts != nil {
		return nil
	}
	dsn := a.cfg.Load().Transcript.PostgresDSN
	if dsn == "" {
		a.log.Info("transcript log disabled")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, transcriptConnect)
	defer cancel()
	store, err := transcript.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.transcripts = store
	a.checkers = append(a.checkers, health.Checker{Name: "transcript_db", Check: store.Ping})
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	a.log.Info("transcript log connected")
	return nil
}

// newPipeline builds one session's stage chain from the current config, so
// reloaded agent fallbacks and drain timeout apply to new sessions.
func (a *App) newPipeline(log *slog.Logger) pipeline.Stage {
	cfg := a.cfg.Load()
	p := pipeline.New(pipeline.Collaborators{
		STT:            a.providers.STT,
		IndicToEnglish: a.providers.IndicToEnglish,
		EnglishToIndic: a.providers.EnglishToIndic,
		Agent:          a.agent,
		TTS:            a.providers.TTS,
		Names:          a.providers.Names,
	}, pipeline.Config{
		Language:           cfg.Language.Code,
		Script:             cfg.Language.Script,
		ShortInputGreeting: cfg.Language.ShortInputGreeting,
		ShortInputWords:    cfg.Language.ShortInputWords,
		Apology:            cfg.Agent.Apology,
		DrainTimeout:       cfg.Session.DrainTimeout,
		Logger:             log,
		Metrics:            a.metrics,
	})
	return p.Run
}

// Handler returns the root HTTP handler: health, metrics and the WebSocket
// endpoint, wrapped in tracing middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Config returns the active configuration.
func (a *App) Config() *config.Config { return a.cfg.Load() }

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of next. It is shaped to be passed
// to config.NewWatcher. Sections that need a restart are logged and ignored
// until then.
func (a *App) Reload(old, next *config.Config) {
	d := config.Diff(old, next)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	cur := *a.cfg.Load()
	if d.VADChanged || d.TurnChanged || d.SessionChanged {
		if err := a.sessions.SetConfig(sessionConfig(next)); err != nil {
			a.log.Warn("rejected session settings, keeping the previous ones", "err", err)
		} else {
			cur.Audio, cur.VAD, cur.Turn, cur.Session = next.Audio, next.VAD, next.Turn, next.Session
			a.log.Info("session settings reloaded; live sessions keep theirs")
		}
	}
	if d.AgentChanged {
		a.agent.SetConfig(agentConfig(next))
		a.log.Info("agent settings reloaded")
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart to apply", "sections", d.RestartRequired)
	}

	// Restart-only sections stay at their running values.
	cur.Server.LogLevel = next.Server.LogLevel
	cur.Agent = next.Agent
	a.cfg.Store(&cur)
}

// ─── Serve ───────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Load().Server.ListenAddr
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts the server down.
// Session request contexts derive from ctx, so cancelling it also ends live
// sessions, each of which drains its pipeline before closing.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("listening", "addr", ln.Addr().String(), "websocket_path", a.cfg.Load().Server.WebSocketPath)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = err
				return
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// SlogLevel converts a config log level to its slog counterpart.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func sessionConfig(cfg *config.Config) session.Config {
	v := cfg.VAD
	return session.Config{
		VAD: vad.Config{
			SampleRate: cfg.Audio.SampleRate,
			Threshold:  v.Threshold,
			MinSpeech:  v.MinSpeech(),
			MinSilence: v.MinSilence(),
		},
		NewClassifier: func() vad.Classifier {
			return vad.NewEnergyClassifier(v.EnergyFloor, v.EnergyCeiling, v.EnergySmoothing)
		},
		BotStopDelay:    cfg.Turn.BotStopDelay,
		ReceiveTimeout:  cfg.Session.ReceiveTimeout,
		MaxMessageBytes: cfg.Session.MaxMessageBytes,
	}
}

func agentConfig(cfg *config.Config) agent.Config {
	return agent.Config{
		SystemPrompt: cfg.Agent.SystemPrompt,
		MaxSteps:     cfg.Agent.MaxSteps,
		Temperature:  cfg.Agent.Temperature,
		NoAnswer:     cfg.Agent.NoAnswer,
	}
}
