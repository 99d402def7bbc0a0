// Package mock provides a scripted test double for vad.Classifier.
//
// Example:
//
//	c := &mock.Classifier{Script: []float64{0.9, 0.9, 0.1}}
//	d, _ := vad.New(c, vad.DefaultConfig())
package mock

import (
	"sync"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/internal/vad"
)

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Script holds the scores returned by successive Classify calls. Once it
	// is exhausted, Default is returned.
	Script []float64

	// Default is returned after Script runs out.
	Default float64

	// Errors maps a zero-based Classify call index to the error returned by
	// that call. The script position still advances on a failing call.
	Errors map[int]error

	// --- Call records ---

	// Frames holds a copy of every frame passed to Classify, in order.
	Frames [][]byte

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int
}

var _ vad.Classifier = (*Classifier)(nil)

// Classify records the frame and returns the next scripted score.
func (c *Classifier) Classify(frame []byte) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := len(c.Frames)
	cp := make([]byte, len(frame))
	copy(cp, frame)
	c.Frames = append(c.Frames, cp)

	if err := c.Errors[i]; err != nil {
		return 0, err
	}
	if i < len(c.Script) {
		return c.Script[i], nil
	}
	return c.Default, nil
}

// Reset records the call by incrementing ResetCallCount.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResetCallCount++
}

// CallCount returns the number of Classify calls so far.
func (c *Classifier) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Frames)
}

// Resets returns the number of Reset calls so far.
func (c *Classifier) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ResetCallCount
}
