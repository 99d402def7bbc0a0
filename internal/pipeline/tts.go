package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/event"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/observe"
)

// backgroundBuffer is the capacity of the synthesized-audio queue.
const backgroundBuffer = 16

// TTS synthesizes each Indic [event.Translation] in the background. The
// stage forwards upstream events immediately and emits an empty
// [event.TTSChunk] marker when a synthesis starts; the audio chunk follows
// whenever synthesis finishes. On [event.TurnEnd] it emits
// [event.TTSComplete] once every synthesis of that turn is done.
//
// When the input closes or ctx is done, no new synthesis starts. Synthesis
// already in flight is awaited for at most Config.DrainTimeout and then
// cancelled. Cancelled syntheses are not reported as failures. Once ctx is
// done their audio is discarded.
func (p *Pipeline) TTS() Stage {
	return func(ctx context.Context, in <-chan event.Event) <-chan event.Event {
		up := make(chan event.Event)
		bg := make(chan event.Event, backgroundBuffer)

		synthCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		var (
			all       sync.WaitGroup
			abandoned atomic.Bool
			pending   = make(map[*event.Turn]*sync.WaitGroup)
		)

		emitBG := func(ev event.Event) bool { return send(ctx, bg, ev) }

		synthesize := func(turn *event.Turn, text string, done func()) {
			defer done()
			var audio []byte
			err := p.call(synthCtx, observe.StageTTS, func(ctx context.Context) error {
				var err error
				audio, err = p.c.TTS.Synthesize(ctx, text)
				return err
			})
			if err != nil {
				if abandoned.Load() {
					p.log.Debug("pipeline: synthesis cancelled at drain timeout", "turn_id", turn.LogID())
					return
				}
				p.fail(observe.StageTTS, turn, err)
				return
			}
			if len(audio) == 0 {
				return
			}
			p.log.Info("pipeline: synthesized", "turn_id", turn.LogID(), "bytes", len(audio))
			emitBG(&event.TTSChunk{Meta: event.NewMeta(turn), Audio: audio})
		}

		go func() {
			defer close(bg)
			defer cancel()

			p.forwardTTS(ctx, in, up, func(ev event.Event) {
				turn := ev.Turn()
				switch e := ev.(type) {
				case *event.Translation:
					if e.Direction != event.EnglishToIndic || e.Text == "" || ctx.Err() != nil {
						return
					}
					if !send(ctx, up, &event.TTSChunk{Meta: event.NewMeta(turn)}) {
						return
					}
					twg, ok := pending[turn]
					if !ok {
						twg = &sync.WaitGroup{}
						pending[turn] = twg
					}
					twg.Add(1)
					all.Add(1)
					go synthesize(turn, e.Text, func() {
						twg.Done()
						all.Done()
					})
				case *event.TurnEnd:
					twg := pending[turn]
					delete(pending, turn)
					all.Add(1)
					go func() {
						defer all.Done()
						if twg != nil {
							twg.Wait()
						}
						emitBG(&event.TTSComplete{Meta: event.NewMeta(turn)})
					}()
				}
			})
			close(up)

			drained := make(chan struct{})
			go func() {
				all.Wait()
				close(drained)
			}()
			timer := time.NewTimer(p.cfg.DrainTimeout)
			defer timer.Stop()
			select {
			case <-drained:
			case <-timer.C:
				p.log.Warn("pipeline: synthesis drain timed out, cancelling", "timeout", p.cfg.DrainTimeout)
				abandoned.Store(true)
				cancel()
				<-drained
			}
		}()

		return Merge(ctx, up, bg)
	}
}

// forwardTTS forwards every event from in to up, calling handle after each.
func (p *Pipeline) forwardTTS(ctx context.Context, in <-chan event.Event, up chan<- event.Event, handle func(event.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			if !send(ctx, up, ev) {
				return
			}
			handle(ev)
		}
	}
}
