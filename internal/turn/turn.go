// Package turn keeps the assistant from hearing itself.
//
// A [Coordinator] sits in front of the voice activity detector. Once an
// utterance is handed to the pipeline the coordinator reports the bot as
// speaking, and every inbound chunk is dropped until the turn has completed
// and a short debounce delay has elapsed. Errors bypass the delay.
//
// The coordinator is single-writer: only a session's receive loop calls it.
package turn

import (
	"fmt"
	"time"
)

// DefaultStopDelay is the debounce window after a turn completes.
const DefaultStopDelay = 500 * time.Millisecond

// State is the coordinator's position in the turn cycle.
type State int

const (
	// Listening admits audio to the detector.
	Listening State = iota

	// BotSpeaking drops audio while a turn is in flight.
	BotSpeaking

	// Debounce drops audio until the stop delay has elapsed.
	Debounce
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case BotSpeaking:
		return "bot_speaking"
	case Debounce:
		return "debounce"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithStateHook registers fn to be called on every state transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(c *Coordinator) {
		c.onChange = fn
	}
}

// Coordinator is the turn-taking state machine. The zero value is not usable;
// create one with [New].
type Coordinator struct {
	delay time.Duration
	now   func() time.Time

	botSpeaking bool
	stopTime    time.Time

	onChange func(from, to State)
}

// New returns a Coordinator in the Listening state. A non-positive delay
// selects [DefaultStopDelay].
func New(delay time.Duration, opts ...Option) *Coordinator {
	if delay <= 0 {
		delay = DefaultStopDelay
	}
	c := &Coordinator{delay: delay, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the current state without advancing it.
func (c *Coordinator) State() State {
	switch {
	case !c.botSpeaking:
		return Listening
	case c.stopTime.IsZero():
		return BotSpeaking
	default:
		return Debounce
	}
}

// Admit reports whether an inbound chunk may be handed to the detector. In
// Debounce it first checks the delay: once strictly more than the delay has
// passed since the turn completed, the coordinator returns to Listening and
// the chunk is admitted.
func (c *Coordinator) Admit() bool {
	if !c.botSpeaking {
		return true
	}
	if c.stopTime.IsZero() || c.now().Sub(c.stopTime) <= c.delay {
		return false
	}
	c.set(false, time.Time{})
	return true
}

// BeginTurn records that an utterance was handed to the pipeline.
func (c *Coordinator) BeginTurn() {
	c.set(true, time.Time{})
}

// EndTurn records that the pipeline finished the current turn and starts the
// debounce delay. It is a no-op unless a turn is in flight.
func (c *Coordinator) EndTurn() {
	if c.State() != BotSpeaking {
		return
	}
	c.set(true, c.now())
}

// Abort forces the coordinator back to Listening without waiting out the
// debounce delay. Called when a turn fails.
func (c *Coordinator) Abort() {
	c.set(false, time.Time{})
}

func (c *Coordinator) set(botSpeaking bool, stopTime time.Time) {
	from := c.State()
	c.botSpeaking = botSpeaking
	c.stopTime = stopTime
	if to := c.State(); to != from && c.onChange != nil {
		c.onChange(from, to)
	}
}
