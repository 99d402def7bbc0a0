package resilience

import (
	"context"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/llm"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/stt"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/translate"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/tts"
)

// The types below put one pipeline slot behind a [FallbackGroup] and
// implement that slot's provider interface, so a pipeline cannot tell a
// guarded chain from a single client. Each embeds its group, which exposes
// AddFallback, Names and Breaker.

var (
	_ stt.Provider       = (*STT)(nil)
	_ translate.Provider = (*Translator)(nil)
	_ llm.Provider       = (*LLM)(nil)
	_ tts.Provider       = (*TTS)(nil)
)

// STT guards speech recognisers.
type STT struct{ *FallbackGroup[stt.Provider] }

// NewSTT returns an [STT] with primary tried first.
func NewSTT(primary stt.Provider, name string, cfg FallbackConfig) *STT {
	return &STT{NewFallbackGroup(primary, name, cfg)}
}

func (g *STT) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	return ExecuteWithResult(ctx, g.FallbackGroup, func(ctx context.Context, p stt.Provider) (string, error) {
		return p.Transcribe(ctx, wav, language)
	})
}

// Translator guards one translation direction. Build one per direction so
// that a broken Indic to English model leaves the reverse breaker closed.
type Translator struct{ *FallbackGroup[translate.Provider] }

// NewTranslator returns a [Translator] with primary tried first.
func NewTranslator(primary translate.Provider, name string, cfg FallbackConfig) *Translator {
	return &Translator{NewFallbackGroup(primary, name, cfg)}
}

func (g *Translator) Translate(ctx context.Context, text, srcLang, tgtLang string) (string, error) {
	return ExecuteWithResult(ctx, g.FallbackGroup, func(ctx context.Context, p translate.Provider) (string, error) {
		return p.Translate(ctx, text, srcLang, tgtLang)
	})
}

// LLM guards chat backends. A failed step is retried on the next backend
// with the same request, tool-call history included.
type LLM struct{ *FallbackGroup[llm.Provider] }

// NewLLM returns an [LLM] with primary tried first.
func NewLLM(primary llm.Provider, name string, cfg FallbackConfig) *LLM {
	return &LLM{NewFallbackGroup(primary, name, cfg)}
}

func (g *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, g.FallbackGroup, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// TTS guards synthesizers.
type TTS struct{ *FallbackGroup[tts.Provider] }

// NewTTS returns a [TTS] with primary tried first.
func NewTTS(primary tts.Provider, name string, cfg FallbackConfig) *TTS {
	return &TTS{NewFallbackGroup(primary, name, cfg)}
}

func (g *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return ExecuteWithResult(ctx, g.FallbackGroup, func(ctx context.Context, p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text)
	})
}
