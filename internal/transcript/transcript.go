// Package transcript keeps a per-turn log of what was heard, translated and
// answered.
//
// A [Collector] folds a turn's events into a [Record] as they pass through
// the session writer; [PostgresStore] persists finished records. Logging is
// optional and best effort: a write failure never affects the conversation.
package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/event"
)

// Record is one completed turn.
type Record struct {
	SessionID string
	TurnID    string

	// Transcript is the STT output in the user's language.
	Transcript string

	// English is the Indic->English translation of Transcript.
	English string

	// Response is the agent's English reply.
	Response string

	// Reply is Response translated back into the user's language.
	Reply string

	// Failed reports that a collaborator failed during the turn.
	Failed bool

	Started   time.Time
	Completed time.Time
}

// Writer persists records.
type Writer interface {
	Write(ctx context.Context, r Record) error
}

// Collector accumulates records for in-flight turns. It is safe for
// concurrent use.
type Collector struct {
	sessionID string

	mu    sync.Mutex
	turns map[*event.Turn]*Record
}

// NewCollector returns a Collector for one session.
func NewCollector(sessionID string) *Collector {
	return &Collector{sessionID: sessionID, turns: make(map[*event.Turn]*Record)}
}

// Observe folds ev into its turn's record. Events without a turn and start
// markers are ignored.
func (c *Collector) Observe(ev event.Event) {
	turn := ev.Turn()
	if turn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.turns[turn]
	if !ok {
		r = &Record{SessionID: c.sessionID, TurnID: turn.ID, Started: turn.Started}
		c.turns[turn] = r
	}
	switch e := ev.(type) {
	case *event.STTOutput:
		r.Transcript = e.Transcript
	case *event.Translation:
		if e.Text == "" {
			return
		}
		if e.Direction == event.IndicToEnglish {
			r.English = e.Text
		} else {
			r.Reply = e.Text
		}
	case *event.AgentEnd:
		r.Response = e.FullResponse
	}
}

// Finish removes and returns turn's record, stamped with completion time and
// failure state.
func (c *Collector) Finish(turn *event.Turn) Record {
	c.mu.Lock()
	r, ok := c.turns[turn]
	delete(c.turns, turn)
	c.mu.Unlock()

	if !ok {
		r = &Record{SessionID: c.sessionID, TurnID: turn.LogID()}
		if turn != nil {
			r.Started = turn.Started
		}
	}
	r.Failed = turn.Failed()
	r.Completed = time.Now()
	return *r
}
