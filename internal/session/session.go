// Package session serves one voice conversation per WebSocket connection.
//
// A session runs three goroutines:
//   - The reader pulls binary PCM frames off the socket.
//   - The gate loop owns the turn coordinator and the VAD detector. It drops
//     audio while the bot speaks and turns finalized utterances into pipeline
//     input.
//   - The writer encodes pipeline output as JSON text frames, with TTS audio
//     following as binary frames. It reports each completed turn back to the
//     gate loop.
//
// The gate loop ends when the client goes away or no audio arrives for
// Config.ReceiveTimeout. The pipeline then drains and the writer flushes
// every remaining event before the socket is closed. If the connection fails
// instead, the pipeline context is cancelled so no further collaborator
// calls are made; synthesis already in flight gets the TTS drain.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/event"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/observe"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/pipeline"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/transcript"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/turn"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/vad"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/audio"
)

// Channel capacities between the session goroutines.
const (
	chunkBuffer    = 32
	pipelineBuffer = 16
	outcomeBuffer  = 8
)

// transcriptTimeout bounds a single transcript write.
const transcriptTimeout = 5 * time.Second

// Config tunes new sessions. Live sessions keep the Config they started with.
type Config struct {
	// VAD configures each session's utterance segmenter.
	VAD vad.Config

	// NewClassifier returns a fresh classifier for one session's detector.
	NewClassifier func() vad.Classifier

	// BotStopDelay is the debounce after a turn completes before inbound
	// audio is admitted again.
	BotStopDelay time.Duration

	// ReceiveTimeout ends the session's input when no audio arrives for
	// this long.
	ReceiveTimeout time.Duration

	// WriteTimeout bounds a single outbound frame.
	WriteTimeout time.Duration

	// MaxMessageBytes limits the size of one inbound WebSocket message.
	MaxMessageBytes int64
}

// DefaultConfig returns the defaults: 16 kHz energy VAD, 500 ms debounce,
// 120 s receive timeout and 1 MiB messages.
func DefaultConfig() Config {
	return Config{
		VAD: vad.DefaultConfig(),
		NewClassifier: func() vad.Classifier {
			return vad.NewEnergyClassifier(200, 2000, 0)
		},
		BotStopDelay:    500 * time.Millisecond,
		ReceiveTimeout:  120 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageBytes: 1 << 20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.VAD.SampleRate == 0 {
		c.VAD = d.VAD
	}
	if c.NewClassifier == nil {
		c.NewClassifier = d.NewClassifier
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = d.ReceiveTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = d.MaxMessageBytes
	}
	return c
}

// PipelineFactory builds the stage chain for one session. The logger is
// already scoped to the session.
type PipelineFactory func(log *slog.Logger) pipeline.Stage

// Option configures a [Handler].
type Option func(*Handler)

// WithTranscripts records every completed turn to w.
func WithTranscripts(w transcript.Writer) Option {
	return func(h *Handler) { h.transcripts = w }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the base logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithOriginPatterns allows cross-origin WebSocket handshakes from hosts
// matching patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = patterns }
}

// Handler accepts WebSocket connections and runs one session per connection.
// It is safe for concurrent use.
type Handler struct {
	cfg         atomic.Pointer[Config]
	newPipeline PipelineFactory
	transcripts transcript.Writer
	metrics     *observe.Metrics
	log         *slog.Logger
	origins     []string
}

var _ http.Handler = (*Handler)(nil)

// NewHandler returns a Handler that builds each session's pipeline with
// newPipeline.
func NewHandler(cfg Config, newPipeline PipelineFactory, opts ...Option) (*Handler, error) {
	if newPipeline == nil {
		return nil, errors.New("session: pipeline factory must not be nil")
	}
	h := &Handler{newPipeline: newPipeline}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if err := h.SetConfig(cfg); err != nil {
		return nil, err
	}
	return h, nil
}

// SetConfig replaces the configuration used for sessions accepted from now
// on. The VAD settings are validated before the swap.
func (h *Handler) SetConfig(cfg Config) error {
	cfg = cfg.withDefaults()
	if _, err := vad.New(cfg.NewClassifier(), cfg.VAD); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	h.cfg.Store(&cfg)
	return nil
}

// Config returns the configuration new sessions start with.
func (h *Handler) Config() Config {
	return *h.cfg.Load()
}

// ServeHTTP upgrades the request and runs the session until it ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Warn("session: websocket handshake failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()

	s, err := h.newSession(observe.Logger(r.Context(), h.log), conn)
	if err != nil {
		h.log.Error("session: setup failed", "err", err)
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	s.log.Info("session: connected", "remote", r.RemoteAddr)
	start := time.Now()
	s.run(r.Context())
	s.log.Info("session: ended", "duration", time.Since(start).Round(time.Millisecond))
}

func (h *Handler) newSession(base *slog.Logger, conn *websocket.Conn) (*session, error) {
	cfg := h.Config()
	detector, err := vad.New(cfg.NewClassifier(), cfg.VAD)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	id := uuid.NewString()
	log := base.With("session_id", id)
	s := &session{
		id:          id,
		cfg:         cfg,
		conn:        conn,
		log:         log,
		detector:    detector,
		stage:       h.newPipeline(log),
		transcripts: h.transcripts,
		metrics:     h.metrics,
	}
	s.coord = turn.New(cfg.BotStopDelay, turn.WithStateHook(func(from, to turn.State) {
		log.Debug("session: turn state", "from", from, "to", to)
	}))
	if h.transcripts != nil {
		s.collector = transcript.NewCollector(id)
	}
	return s, nil
}

// session is one connection's state. The detector and coordinator belong to
// the gate loop and the collector to the writer.
type session struct {
	id   string
	cfg  Config
	conn *websocket.Conn
	log  *slog.Logger

	detector *vad.Detector
	coord    *turn.Coordinator
	stage    pipeline.Stage

	collector   *transcript.Collector
	transcripts transcript.Writer
	metrics     *observe.Metrics
}

func (s *session) run(ctx context.Context) {
	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	s.conn.SetReadLimit(s.cfg.MaxMessageBytes)

	chunks := make(chan []byte, chunkBuffer)
	pipeIn := make(chan event.Event, pipelineBuffer)
	outcomes := make(chan *event.Turn, outcomeBuffer)
	gateDone := make(chan struct{})

	// pipeCtx is cancelled once the client is unreachable so no further
	// collaborator calls are made on its behalf.
	pipeCtx, abort := context.WithCancel(ctx)
	defer abort()
	out := s.stage(pipeCtx, pipeIn)

	var g errgroup.Group
	g.Go(func() error {
		defer close(chunks)
		s.read(ctx, chunks, gateDone, abort)
		return nil
	})
	g.Go(func() error {
		defer close(pipeIn)
		defer close(gateDone)
		s.gate(pipeCtx, chunks, outcomes, pipeIn)
		return nil
	})
	g.Go(func() error {
		defer s.conn.Close(websocket.StatusNormalClosure, "")
		return s.write(ctx, out, outcomes, gateDone, abort)
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("session: connection lost before all events were delivered", "err", err)
	}
}

// read forwards binary messages until the connection closes. After the gate
// loop has finished, messages are read and discarded so the close handshake
// can complete. A read failure other than a close handshake calls abort.
func (s *session) read(ctx context.Context, chunks chan<- []byte, gateDone <-chan struct{}, abort context.CancelFunc) {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				s.log.Info("session: client closed connection", "status", status)
			case ctx.Err() != nil:
				s.log.Info("session: server shutting down")
			default:
				select {
				case <-gateDone:
					// Closed by the writer once output was flushed.
				default:
					s.log.Warn("session: read failed, cancelling pipeline", "err", err)
					abort()
				}
			}
			return
		}
		if typ != websocket.MessageBinary {
			s.log.Debug("session: ignoring text message", "bytes", len(data))
			continue
		}
		select {
		case chunks <- data:
		case <-gateDone:
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) gate(ctx context.Context, chunks <-chan []byte, outcomes <-chan *event.Turn, pipeIn chan<- event.Event) {
	idle := time.NewTimer(s.cfg.ReceiveTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				s.finishPending(ctx, outcomes)
				s.flush(ctx, pipeIn)
				return
			}
			idle.Reset(s.cfg.ReceiveTimeout)
			s.finishPending(ctx, outcomes)
			s.handleChunk(ctx, chunk, pipeIn)
		case t := <-outcomes:
			s.finishTurn(ctx, t)
		case <-idle.C:
			s.log.Info("session: no audio received, ending input", "timeout", s.cfg.ReceiveTimeout)
			s.flush(ctx, pipeIn)
			return
		}
	}
}

func (s *session) handleChunk(ctx context.Context, chunk []byte, pipeIn chan<- event.Event) {
	if !s.coord.Admit() {
		s.metrics.RecordDroppedChunk(ctx)
		return
	}
	utt, err := s.detector.ProcessChunk(chunk)
	if err != nil {
		s.log.Warn("session: voice activity detection failed, detector reset", "err", err)
		s.send(ctx, pipeIn, &event.Error{Meta: event.NewMeta(nil), Message: err.Error()})
		return
	}
	if utt != nil {
		s.beginTurn(ctx, utt, pipeIn)
	}
}

// flush hands an in-progress utterance to the pipeline when input ends.
func (s *session) flush(ctx context.Context, pipeIn chan<- event.Event) {
	if !s.coord.Admit() {
		return
	}
	if utt := s.detector.Remaining(); utt != nil {
		s.beginTurn(ctx, utt, pipeIn)
	}
}

func (s *session) beginTurn(ctx context.Context, wav []byte, pipeIn chan<- event.Event) {
	t := event.NewTurn()
	s.coord.BeginTurn()
	s.detector.ClearBuffers()
	s.metrics.RecordUtterance(ctx)

	var speech time.Duration
	if len(wav) > audio.WAVHeaderSize {
		speech = audio.Duration(wav[audio.WAVHeaderSize:], s.cfg.VAD.SampleRate)
	}
	s.log.Info("session: utterance detected", "turn_id", t.ID, "speech", speech)

	if s.send(ctx, pipeIn, &event.UserInput{Meta: event.NewMeta(t), Audio: wav}) {
		s.send(ctx, pipeIn, &event.TurnEnd{Meta: event.NewMeta(t)})
	}
}

// finishPending applies outcomes that are already queued so a chunk is never
// gated by a turn that has completed.
func (s *session) finishPending(ctx context.Context, outcomes <-chan *event.Turn) {
	for {
		select {
		case t := <-outcomes:
			s.finishTurn(ctx, t)
		default:
			return
		}
	}
}

func (s *session) finishTurn(ctx context.Context, t *event.Turn) {
	outcome := observe.OutcomeCompleted
	if t.Failed() {
		outcome = observe.OutcomeFailed
		for _, f := range t.Failures() {
			s.log.Warn("session: turn failed, listening again", "turn_id", t.ID, "stage", f.Stage, "err", f.Err)
		}
		s.coord.Abort()
	} else {
		s.coord.EndTurn()
	}
	s.detector.Reset()
	s.metrics.RecordTurn(ctx, outcome, time.Since(t.Started))
}

func (s *session) send(ctx context.Context, pipeIn chan<- event.Event, ev event.Event) bool {
	select {
	case pipeIn <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// write drains out until the pipeline closes it. The first write error calls
// abort; events are still consumed afterwards so the pipeline and gate loop
// can finish.
func (s *session) write(ctx context.Context, out <-chan event.Event, outcomes chan<- *event.Turn, gateDone <-chan struct{}, abort context.CancelFunc) error {
	var writeErr error
	for ev := range out {
		if s.collector != nil {
			s.collector.Observe(ev)
		}
		// The outcome is reported before the client can see the turn end,
		// so audio it sends in response meets the updated coordinator.
		if done, ok := ev.(*event.TTSComplete); ok {
			s.record(ctx, done.Turn())
			select {
			case outcomes <- done.Turn():
			case <-gateDone:
			}
		}
		if writeErr == nil {
			if err := s.writeEvent(ctx, ev); err != nil {
				writeErr = err
				abort()
			}
		}
	}
	return writeErr
}

func (s *session) writeEvent(ctx context.Context, ev event.Event) error {
	if !event.Wire(ev) {
		return nil
	}
	data, err := event.Encode(ev)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	if err := s.conn.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("session: write %s: %w", ev.Type(), err)
	}
	if bin := event.Binary(ev); bin != nil {
		if err := s.conn.Write(wctx, websocket.MessageBinary, bin); err != nil {
			return fmt.Errorf("session: write %s audio: %w", ev.Type(), err)
		}
	}
	return nil
}

func (s *session) record(ctx context.Context, t *event.Turn) {
	if s.collector == nil || t == nil {
		return
	}
	rec := s.collector.Finish(t)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transcriptTimeout)
	defer cancel()
	if err := s.transcripts.Write(wctx, rec); err != nil {
		s.log.Warn("session: transcript write failed", "turn_id", t.ID, "err", err)
	}
}
