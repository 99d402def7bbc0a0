package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/config"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/health"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/observe"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/resilience"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/llm"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/stt"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/translate"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/tts"
)

// Providers holds one collaborator per pipeline slot.
type Providers struct {
	STT            stt.Provider
	IndicToEnglish translate.Provider
	EnglishToIndic translate.Provider
	TTS            tts.Provider
	LLM            llm.Provider

	// Names labels the collaborators in metrics, keyed by observe.Stage*
	// constants.
	Names map[string]string

	// Checkers probe the remote services for /readyz.
	Checkers []health.Checker
}

// healthProber is implemented by collaborator clients whose service exposes
// a health endpoint.
type healthProber interface {
	Health(ctx context.Context) error
}

type named[P any] struct {
	name string
	p    P
}

type builder struct {
	log      *slog.Logger
	errs     []error
	checkers []health.Checker
}

// BuildProviders instantiates every provider named in cfg through reg and
// wraps each slot in a circuit breaker, with the configured fallback (if
// any) behind it. A primary that cannot be created is an error; a fallback
// that cannot be created is logged and skipped.
func BuildProviders(cfg *config.Config, reg *config.Registry, log *slog.Logger) (*Providers, error) {
	if log == nil {
		log = slog.Default()
	}
	b := &builder{log: log}

	sttChain := createChain(b, "stt", reg.CreateSTT, cfg.Providers.STT, cfg.Fallbacks.STT)
	inChain := createChain(b, "translate_indic_en", reg.CreateTranslator, cfg.Providers.TranslateIndicEn, cfg.Fallbacks.TranslateIndicEn)
	outChain := createChain(b, "translate_en_indic", reg.CreateTranslator, cfg.Providers.TranslateEnIndic, cfg.Fallbacks.TranslateEnIndic)
	ttsChain := createChain(b, "tts", reg.CreateTTS, cfg.Providers.TTS, cfg.Fallbacks.TTS)
	llmChain := createChain(b, "llm", reg.CreateLLM, cfg.Providers.LLM, cfg.Fallbacks.LLM)
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	fb := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{Logger: log}}
	return &Providers{
		STT:            wrap(sttChain, fb, resilience.NewSTT),
		IndicToEnglish: wrap(inChain, fb, resilience.NewTranslator),
		EnglishToIndic: wrap(outChain, fb, resilience.NewTranslator),
		TTS:            wrap(ttsChain, fb, resilience.NewTTS),
		LLM:            wrap(llmChain, fb, resilience.NewLLM),
		Names: map[string]string{
			observe.StageSTT:       sttChain[0].name,
			observe.StageTranslate: inChain[0].name,
			observe.StageAgent:     llmChain[0].name,
			observe.StageTTS:       ttsChain[0].name,
		},
		Checkers: b.checkers,
	}, nil
}

// createChain builds the primary and, when configured, the fallback for one
// slot. The result is empty only when the primary failed.
func createChain[P any](b *builder, kind string, create func(config.ProviderEntry) (P, error), primary, fallback config.ProviderEntry) []named[P] {
	p, err := create(primary)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("create %s provider %q: %w", kind, primary.Name, err))
		return nil
	}
	b.log.Info("provider created", "kind", kind, "name", primary.Name)
	b.addChecker(kind, p)
	chain := []named[P]{{name: primary.Name, p: p}}

	if fallback.Name == "" {
		return chain
	}
	f, err := create(fallback)
	if err != nil {
		b.log.Warn("fallback provider unavailable, continuing without it", "kind", kind, "name", fallback.Name, "err", err)
		return chain
	}
	b.log.Info("fallback provider created", "kind", kind, "name", fallback.Name)
	b.addChecker(kind+"_fallback", f)
	return append(chain, named[P]{name: fallback.Name, p: f})
}

func (b *builder) addChecker(name string, p any) {
	if hp, ok := p.(healthProber); ok {
		b.checkers = append(b.checkers, health.Checker{Name: name, Check: hp.Health})
	}
}

// wrap puts chain behind a fallback group. chain must not be empty.
func wrap[P any, W interface{ AddFallback(string, P) }](chain []named[P], cfg resilience.FallbackConfig, newGroup func(P, string, resilience.FallbackConfig) W) W {
	w := newGroup(chain[0].p, chain[0].name, cfg)
	for _, n := range chain[1:] {
		w.AddFallback(n.name, n.p)
	}
	return w
}
