package vad

import (
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/audio"
)

// Classifier scores a single fixed-size analysis window. Implementations may
// carry state from one window to the next (recurrent models do); Reset
// returns them to their initial state.
//
// A Classifier is owned by exactly one [Detector] and is never called
// concurrently.
type Classifier interface {
	// Classify returns the probability in [0, 1] that frame contains speech.
	// frame is little-endian 16-bit mono PCM of exactly one window.
	Classify(frame []byte) (float64, error)

	// Reset clears any state carried across frames.
	Reset()
}

// EnergyClassifier is a [Classifier] that maps the RMS amplitude of a frame
// linearly onto [0, 1] between Floor and Ceiling. With Smoothing > 0 the
// score is an exponential moving average across frames, which gives the
// classifier a short memory similar to recurrent VAD models.
type EnergyClassifier struct {
	// Floor is the RMS at or below which a frame scores 0.
	Floor float64

	// Ceiling is the RMS at or above which a frame scores 1.
	Ceiling float64

	// Smoothing in [0, 1) is the weight given to the previous score.
	Smoothing float64

	prev   float64
	primed bool
}

var _ Classifier = (*EnergyClassifier)(nil)

// NewEnergyClassifier returns an EnergyClassifier with the given calibration.
// A ceiling not above the floor is raised to floor+1 so the mapping stays
// well defined.
func NewEnergyClassifier(floor, ceiling, smoothing float64) *EnergyClassifier {
	if ceiling <= floor {
		ceiling = floor + 1
	}
	if smoothing < 0 || smoothing >= 1 {
		smoothing = 0
	}
	return &EnergyClassifier{Floor: floor, Ceiling: ceiling, Smoothing: smoothing}
}

// Classify implements [Classifier].
func (c *EnergyClassifier) Classify(frame []byte) (float64, error) {
	rms := audio.RMS(frame)
	p := (rms - c.Floor) / (c.Ceiling - c.Floor)
	switch {
	case p < 0:
		p = 0
	case p > 1:
		p = 1
	}
	if c.Smoothing > 0 && c.primed {
		p = c.Smoothing*c.prev + (1-c.Smoothing)*p
	}
	c.prev = p
	c.primed = true
	return p, nil
}

// Reset implements [Classifier].
func (c *EnergyClassifier) Reset() {
	c.prev = 0
	c.primed = false
}
