package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/agent"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/event"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/observe"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/translate"
)

// STT transcribes each [event.UserInput]. It emits an empty [event.STTChunk]
// when transcription starts and an [event.STTOutput] for a non-blank
// transcript. A failed transcription ends the turn's progress here.
func (p *Pipeline) STT() Stage {
	return func(ctx context.Context, in <-chan event.Event) <-chan event.Event {
		return transform(ctx, in, func(ctx context.Context, ev event.Event, emit func(event.Event) bool) {
			ui, ok := ev.(*event.UserInput)
			if !ok || len(ui.Audio) == 0 {
				return
			}
			turn := ui.Turn()
			if !emit(&event.STTChunk{Meta: event.NewMeta(turn)}) {
				return
			}

			var text string
			err := p.call(ctx, observe.StageSTT, func(ctx context.Context) error {
				var err error
				text, err = p.c.STT.Transcribe(ctx, ui.Audio, p.cfg.Language)
				return err
			})
			if err != nil {
				p.fail(observe.StageSTT, turn, err)
				return
			}
			text = strings.TrimSpace(text)
			if text == "" {
				p.log.Debug("pipeline: empty transcript", "turn_id", turn.LogID())
				return
			}
			p.log.Info("pipeline: transcribed", "turn_id", turn.LogID(), "transcript", text)
			emit(&event.STTOutput{Meta: event.NewMeta(turn), Transcript: text, Language: p.cfg.Language})
		})
	}
}

// IndicToEnglish translates each [event.STTOutput] into English, emitting an
// empty start marker first.
func (p *Pipeline) IndicToEnglish() Stage {
	return func(ctx context.Context, in <-chan event.Event) <-chan event.Event {
		return transform(ctx, in, func(ctx context.Context, ev event.Event, emit func(event.Event) bool) {
			out, ok := ev.(*event.STTOutput)
			if !ok || out.Transcript == "" {
				return
			}
			p.translate(ctx, out.Turn(), p.c.IndicToEnglish, p.padShort(out.Transcript),
				p.cfg.Script, translate.English, event.IndicToEnglish, emit)
		})
	}
}

// EnglishToIndic translates each non-empty [event.AgentEnd] reply back into
// the user's language, emitting an empty start marker first.
func (p *Pipeline) EnglishToIndic() Stage {
	return func(ctx context.Context, in <-chan event.Event) <-chan event.Event {
		return transform(ctx, in, func(ctx context.Context, ev event.Event, emit func(event.Event) bool) {
			end, ok := ev.(*event.AgentEnd)
			if !ok || strings.TrimSpace(end.FullResponse) == "" {
				return
			}
			p.translate(ctx, end.Turn(), p.c.EnglishToIndic, end.FullResponse,
				translate.English, p.cfg.Script, event.EnglishToIndic, emit)
		})
	}
}

func (p *Pipeline) translate(ctx context.Context, turn *event.Turn, tr translate.Provider, text, src, tgt string, dir event.Direction, emit func(event.Event) bool) {
	marker := &event.Translation{Meta: event.NewMeta(turn), SrcLang: src, TgtLang: tgt, Direction: dir}
	if !emit(marker) {
		return
	}

	var result string
	err := p.call(ctx, observe.StageTranslate, func(ctx context.Context) error {
		var err error
		result, err = tr.Translate(ctx, text, src, tgt)
		return err
	})
	if err != nil {
		p.fail(observe.StageTranslate, turn, err)
		return
	}
	result = strings.TrimSpace(result)
	if result == "" {
		p.log.Debug("pipeline: empty translation", "turn_id", turn.LogID(), "direction", dir)
		return
	}
	p.log.Info("pipeline: translated", "turn_id", turn.LogID(), "direction", dir, "text", result)
	emit(&event.Translation{Meta: event.NewMeta(turn), Text: result, SrcLang: src, TgtLang: tgt, Direction: dir})
}

// padShort prefixes the greeting to short Kannada input. The translator
// tends to misdetect the source language of one or two word inputs; the
// greeting is left in the translated output.
func (p *Pipeline) padShort(text string) string {
	if p.cfg.Script != translate.Kannada || p.cfg.ShortInputGreeting == "" {
		return text
	}
	if len(strings.Fields(text)) >= p.cfg.ShortInputWords {
		return text
	}
	return p.cfg.ShortInputGreeting + text
}

// Agent answers each English [event.Translation]. On success it emits an
// empty [event.AgentChunk], one [event.ToolCall] and [event.ToolResult] per
// tool step, the reply as an AgentChunk and finally [event.AgentEnd]. On
// failure it emits AgentEnd with the configured apology, so the user always
// hears something back.
func (p *Pipeline) Agent() Stage {
	return func(ctx context.Context, in <-chan event.Event) <-chan event.Event {
		return transform(ctx, in, func(ctx context.Context, ev event.Event, emit func(event.Event) bool) {
			tr, ok := ev.(*event.Translation)
			if !ok || tr.Direction != event.IndicToEnglish || tr.Text == "" {
				return
			}
			turn := tr.Turn()
			if !emit(&event.AgentChunk{Meta: event.NewMeta(turn)}) {
				return
			}

			var reply *agent.Reply
			err := p.call(ctx, observe.StageAgent, func(ctx context.Context) error {
				var err error
				reply, err = p.c.Agent.Respond(ctx, tr.Text)
				if err == nil && reply == nil {
					err = errors.New("agent returned no reply")
				}
				return err
			})
			var steps []agent.Step
			if reply != nil {
				steps = reply.Steps
			}
			for _, s := range steps {
				p.recordTool(ctx, s)
				if !emit(&event.ToolCall{Meta: event.NewMeta(turn), ID: s.CallID, Name: s.Name, Args: s.Args}) {
					return
				}
				if !emit(&event.ToolResult{Meta: event.NewMeta(turn), CallID: s.CallID, Name: s.Name, Result: s.Result}) {
					return
				}
			}
			if err != nil && ctx.Err() != nil {
				p.log.Debug("pipeline: agent cancelled", "turn_id", turn.LogID())
				return
			}
			if err != nil {
				p.log.Warn("pipeline: agent failed, apologising", "stage", observe.StageAgent, "turn_id", turn.LogID(), "err", err)
				emit(&event.AgentEnd{Meta: event.NewMeta(turn), FullResponse: p.cfg.Apology})
				return
			}
			text := reply.Text
			p.log.Info("pipeline: agent replied", "turn_id", turn.LogID(), "steps", len(reply.Steps), "response", text)
			if !emit(&event.AgentChunk{Meta: event.NewMeta(turn), Text: text}) {
				return
			}
			emit(&event.AgentEnd{Meta: event.NewMeta(turn), FullResponse: text})
		})
	}
}

func (p *Pipeline) recordTool(ctx context.Context, s agent.Step) {
	status := "ok"
	if strings.HasPrefix(s.Result, "error: ") {
		status = "error"
	}
	p.m.RecordToolCall(ctx, s.Name, status)
	p.m.ToolExecutionDuration.Record(ctx, s.Duration.Seconds())
}
