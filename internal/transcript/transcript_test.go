package transcript_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/event"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/transcript"
)

func TestCollector_BuildsRecord(t *testing.T) {
	t.Parallel()

	c := transcript.NewCollector("sess-1")
	turn := event.NewTurn()
	other := event.NewTurn()

	for _, ev := range []event.Event{
		&event.UserInput{Meta: event.NewMeta(turn)},
		&event.STTOutput{Meta: event.NewMeta(turn), Transcript: "ಹವಾಮಾನ ಹೇಗಿದೆ"},
		&event.Translation{Meta: event.NewMeta(turn), Direction: event.IndicToEnglish},
		&event.Translation{Meta: event.NewMeta(turn), Text: "How is the weather", Direction: event.IndicToEnglish},
		&event.AgentEnd{Meta: event.NewMeta(turn), FullResponse: "It is sunny."},
		&event.Translation{Meta: event.NewMeta(turn), Text: "ಬಿಸಿಲು ಇದೆ.", Direction: event.EnglishToIndic},
		&event.STTOutput{Meta: event.NewMeta(other), Transcript: "ಬೇರೆ"},
		&event.Error{Message: "no turn"},
	} {
		c.Observe(ev)
	}

	r := c.Finish(turn)
	want := transcript.Record{
		SessionID:  "sess-1",
		TurnID:     turn.ID,
		Transcript: "ಹವಾಮಾನ ಹೇಗಿದೆ",
		English:    "How is the weather",
		Response:   "It is sunny.",
		Reply:      "ಬಿಸಿಲು ಇದೆ.",
	}
	if r.SessionID != want.SessionID || r.TurnID != want.TurnID || r.Transcript != want.Transcript ||
		r.English != want.English || r.Response != want.Response || r.Reply != want.Reply {
		t.Errorf("record = %+v, want %+v", r, want)
	}
	if r.Failed {
		t.Error("record marked failed")
	}
	if !r.Started.Equal(turn.Started) || r.Completed.Before(r.Started) {
		t.Errorf("timestamps started=%v completed=%v", r.Started, r.Completed)
	}

	if again := c.Finish(turn); again.Transcript != "" {
		t.Errorf("second Finish returned stale data: %+v", again)
	}
	if o := c.Finish(other); o.Transcript != "ಬೇರೆ" {
		t.Errorf("other turn transcript = %q", o.Transcript)
	}
}

func TestCollector_FailedTurn(t *testing.T) {
	t.Parallel()

	c := transcript.NewCollector("s")
	turn := event.NewTurn()
	c.Observe(&event.UserInput{Meta: event.NewMeta(turn)})
	turn.Fail("stt", errors.New("503"))

	if r := c.Finish(turn); !r.Failed || r.Transcript != "" {
		t.Errorf("record = %+v, want failed with empty transcript", r)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("VOICEAGENT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOICEAGENT_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration test")
	}
	ctx := context.Background()

	store, err := transcript.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	session := "test-" + uuid.NewString()
	start := time.Now().UTC().Truncate(time.Millisecond)
	in := []transcript.Record{
		{SessionID: session, TurnID: "t1", Transcript: "ಒಂದು", English: "one", Response: "One.", Reply: "ಒಂದು.", Started: start, Completed: start.Add(time.Second)},
		{SessionID: session, TurnID: "t2", Failed: true, Started: start.Add(2 * time.Second), Completed: start.Add(3 * time.Second)},
	}
	for _, r := range in {
		if err := store.Write(ctx, r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	got, err := store.Session(ctx, session)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if got[0].TurnID != "t1" || got[0].English != "one" || !got[0].Started.Equal(start) {
		t.Errorf("first record = %+v", got[0])
	}
	if got[1].TurnID != "t2" || !got[1].Failed {
		t.Errorf("second record = %+v", got[1])
	}
}
