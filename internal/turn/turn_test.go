package turn_test

import (
	"testing"
	"time"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/turn"
)

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newCoordinator(delay time.Duration) (*turn.Coordinator, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return turn.New(delay, turn.WithClock(clk.Now)), clk
}

func TestNew_StartsListening(t *testing.T) {
	t.Parallel()

	c, _ := newCoordinator(0)
	if c.State() != turn.Listening {
		t.Errorf("State = %v, want listening", c.State())
	}
	if !c.Admit() {
		t.Error("Admit while listening = false, want true")
	}
}

func TestFullCycle(t *testing.T) {
	t.Parallel()

	c, clk := newCoordinator(500 * time.Millisecond)

	c.BeginTurn()
	if c.State() != turn.BotSpeaking {
		t.Fatalf("after BeginTurn: State = %v, want bot_speaking", c.State())
	}

	// No amount of waiting leaves BotSpeaking without a completion signal.
	clk.Advance(time.Hour)
	if c.Admit() {
		t.Error("Admit while bot speaking = true, want false")
	}

	c.EndTurn()
	if c.State() != turn.Debounce {
		t.Fatalf("after EndTurn: State = %v, want debounce", c.State())
	}

	tests := []struct {
		advance time.Duration
		want    bool
	}{
		{advance: 0, want: false},
		{advance: 499 * time.Millisecond, want: false},
		{advance: time.Millisecond, want: false}, // exactly the delay
		{advance: time.Millisecond, want: true},
	}
	for i, tc := range tests {
		clk.Advance(tc.advance)
		if got := c.Admit(); got != tc.want {
			t.Errorf("step %d: Admit = %v, want %v", i, got, tc.want)
		}
	}
	if c.State() != turn.Listening {
		t.Errorf("after delay: State = %v, want listening", c.State())
	}
}

func TestAbort_BypassesDelay(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"bot_speaking", "debounce"} {
		c, _ := newCoordinator(time.Second)
		c.BeginTurn()
		if name == "debounce" {
			c.EndTurn()
		}

		c.Abort()

		if c.State() != turn.Listening {
			t.Errorf("%s: State after Abort = %v, want listening", name, c.State())
		}
		if !c.Admit() {
			t.Errorf("%s: Admit after Abort = false, want true", name)
		}
	}
}

func TestEndTurn_NoOpWhenNotSpeaking(t *testing.T) {
	t.Parallel()

	c, clk := newCoordinator(time.Second)
	c.EndTurn()
	if c.State() != turn.Listening {
		t.Errorf("EndTurn while listening: State = %v, want listening", c.State())
	}

	// A second completion signal must not restart the debounce window.
	c.BeginTurn()
	c.EndTurn()
	clk.Advance(900 * time.Millisecond)
	c.EndTurn()
	clk.Advance(200 * time.Millisecond)
	if !c.Admit() {
		t.Error("Admit 1.1s after first EndTurn = false, want true")
	}
}

func TestStateHook(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	var got []string
	c := turn.New(100*time.Millisecond,
		turn.WithClock(clk.Now),
		turn.WithStateHook(func(from, to turn.State) {
			got = append(got, from.String()+">"+to.String())
		}),
	)

	c.BeginTurn()
	c.EndTurn()
	clk.Advance(101 * time.Millisecond)
	c.Admit()
	c.BeginTurn()
	c.Abort()

	want := []string{
		"listening>bot_speaking",
		"bot_speaking>debounce",
		"debounce>listening",
		"listening>bot_speaking",
		"bot_speaking>listening",
	}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
}
