// Package pipeline chains the voice agent's processing stages:
//
//	UserInput -> STT -> Indic->English -> Agent -> English->Indic -> TTS
//
// A [Stage] consumes a channel of events and returns a channel of events.
// Every stage forwards each event it receives unchanged before emitting the
// events it derives from it, so the output of the last stage is a complete,
// ordered record of the turn. Collaborator failures never escape a stage:
// they are logged, recorded on the event's [event.Turn] and the turn simply
// carries fewer events.
//
// The TTS stage synthesizes in the background so a slow synthesis does not
// hold up upstream events; its output is interleaved with the upstream
// events by [Merge].
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/agent"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/event"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/observe"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/stt"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/translate"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/tts"
)

// Stage transforms one event stream into another. The returned channel is
// closed once in is closed and the stage has emitted everything it owes.
type Stage func(ctx context.Context, in <-chan event.Event) <-chan event.Event

// Responder answers an English question. *agent.Agent satisfies it.
type Responder interface {
	Respond(ctx context.Context, question string) (*agent.Reply, error)
}

// Collaborators are the external services a pipeline calls.
type Collaborators struct {
	STT            stt.Provider
	IndicToEnglish translate.Provider
	EnglishToIndic translate.Provider
	Agent          Responder
	TTS            tts.Provider

	// Names labels each collaborator in metrics, keyed by observe.Stage*
	// constants. Missing entries are reported as "default".
	Names map[string]string
}

// Config tunes a [Pipeline].
type Config struct {
	// Language is the STT language code, e.g. "kn".
	Language string

	// Script is the translation tag of the user's language, e.g. "kan_Knda".
	Script string

	// ShortInputGreeting is prefixed to transcripts with fewer than
	// ShortInputWords words before Indic->English translation. Padding only
	// applies when Script is translate.Kannada. A negative ShortInputWords
	// disables it.
	ShortInputGreeting string
	ShortInputWords    int

	// Apology is the agent reply used when the agent fails.
	Apology string

	// DrainTimeout bounds how long the TTS stage waits for in-flight
	// synthesis once its input closes. Remaining work is then cancelled.
	DrainTimeout time.Duration

	// Logger receives stage logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics records stage latency and collaborator outcomes. Defaults to
	// observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// Defaults.
const (
	DefaultLanguage           = "kn"
	DefaultShortInputGreeting = "ನಮಸ್ಕಾರ, "
	DefaultShortInputWords    = 5
	DefaultApology            = "Sorry, I couldn't process that request."
	DefaultDrainTimeout       = 30 * time.Second
)

// DefaultConfig returns the configuration for Kannada.
func DefaultConfig() Config {
	return Config{
		Language:           DefaultLanguage,
		Script:             translate.Kannada,
		ShortInputGreeting: DefaultShortInputGreeting,
		ShortInputWords:    DefaultShortInputWords,
		Apology:            DefaultApology,
		DrainTimeout:       DefaultDrainTimeout,
	}
}

// Pipeline builds the stages for one session. It holds no per-turn state,
// so the stages it returns may be run once each.
type Pipeline struct {
	c   Collaborators
	cfg Config
	log *slog.Logger
	m   *observe.Metrics
}

// New creates a Pipeline. Zero-valued Config fields take their defaults.
func New(c Collaborators, cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.Script == "" {
		cfg.Script = def.Script
	}
	if cfg.ShortInputGreeting == "" {
		cfg.ShortInputGreeting = def.ShortInputGreeting
	}
	if cfg.ShortInputWords == 0 {
		cfg.ShortInputWords = def.ShortInputWords
	}
	if cfg.Apology == "" {
		cfg.Apology = def.Apology
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	p := &Pipeline{c: c, cfg: cfg, log: cfg.Logger, m: cfg.Metrics}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.m == nil {
		p.m = observe.DefaultMetrics()
	}
	return p
}

// Stages returns the full stage chain in order.
func (p *Pipeline) Stages() []Stage {
	return []Stage{p.STT(), p.IndicToEnglish(), p.Agent(), p.EnglishToIndic(), p.TTS()}
}

// Run feeds in through every stage and returns the final event stream.
func (p *Pipeline) Run(ctx context.Context, in <-chan event.Event) <-chan event.Event {
	return Chain(p.Stages()...)(ctx, in)
}

// Chain composes stages left to right.
func Chain(stages ...Stage) Stage {
	return func(ctx context.Context, in <-chan event.Event) <-chan event.Event {
		out := in
		for _, s := range stages {
			out = s(ctx, out)
		}
		return out
	}
}

// send delivers ev on out unless ctx is done first.
func send(ctx context.Context, out chan<- event.Event, ev event.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// transform runs fn for every event read from in, after forwarding the
// event itself. fn emits derived events through emit. fn is not called once
// ctx is done. The output closes when in closes or ctx is done.
func transform(ctx context.Context, in <-chan event.Event, fn func(ctx context.Context, ev event.Event, emit func(event.Event) bool)) <-chan event.Event {
	out := make(chan event.Event)
	go func() {
		defer close(out)
		emit := func(ev event.Event) bool { return send(ctx, out, ev) }
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					return
				}
				if !emit(ev) || ctx.Err() != nil {
					return
				}
				fn(ctx, ev, emit)
			}
		}
	}()
	return out
}

func (p *Pipeline) name(stage string) string {
	if n, ok := p.c.Names[stage]; ok && n != "" {
		return n
	}
	return "default"
}

// call times one collaborator request and records its outcome.
func (p *Pipeline) call(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	provider := p.name(stage)
	ctx, span := observe.StartStage(ctx, stage, provider)

	start := time.Now()
	err := fn(ctx)
	p.m.RecordStage(ctx, stage, time.Since(start))
	observe.EndStage(span, err)

	if err != nil {
		p.m.RecordProviderRequest(ctx, provider, stage, "error")
		p.m.RecordProviderError(ctx, provider, stage)
		return err
	}
	p.m.RecordProviderRequest(ctx, provider, stage, "ok")
	return nil
}

// fail records a collaborator failure against the turn and logs it.
func (p *Pipeline) fail(stage string, turn *event.Turn, err error) {
	turn.Fail(stage, err)
	p.log.Warn("pipeline: collaborator failed", "stage", stage, "turn_id", turn.LogID(), "err", err)
}
