package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn identifies one utterance's trip through the pipeline and collects the
// failures stages record along the way. A Turn is shared by every event of
// that turn and is safe for concurrent use. Methods on a nil *Turn are no-ops.
type Turn struct {
	ID      string
	Started time.Time

	mu       sync.Mutex
	failures []Failure
}

// Failure is a collaborator error recorded against a turn.
type Failure struct {
	Stage string
	Err   error
}

// NewTurn returns a Turn with a fresh random ID.
func NewTurn() *Turn {
	return &Turn{ID: uuid.NewString(), Started: time.Now()}
}

// Fail records that stage failed with err.
func (t *Turn) Fail(stage string, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = append(t.failures, Failure{Stage: stage, Err: err})
}

// Failed reports whether any stage recorded a failure.
func (t *Turn) Failed() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failures) > 0
}

// Failures returns a copy of the recorded failures.
func (t *Turn) Failures() []Failure {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Failure, len(t.failures))
	copy(out, t.failures)
	return out
}

// LogID returns the turn ID, or "" for a nil turn.
func (t *Turn) LogID() string {
	if t == nil {
		return ""
	}
	return t.ID
}
