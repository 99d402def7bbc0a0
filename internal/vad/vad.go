// Package vad turns an unaligned stream of raw PCM bytes into complete
// utterances.
//
// A [Detector] slices its input into fixed-size analysis windows, scores each
// window with an injected [Classifier] and runs a small state machine over the
// scores: a run of speech windows long enough to count as speech opens an
// utterance, and a run of silence long enough to count as the end of a
// sentence closes it. Closed utterances are returned as WAV containers ready
// for transcription.
//
// A Detector is not safe for concurrent use. Each session owns its own.
package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/audio"
)

// ErrInvalidSampleRate is returned by [New] for sample rates other than 8 kHz
// and 16 kHz.
var ErrInvalidSampleRate = errors.New("vad: sample rate must be 8000 or 16000")

// Config tunes a [Detector].
type Config struct {
	// SampleRate of the incoming PCM in Hz. Must be 8000 or 16000.
	SampleRate int

	// Threshold is the minimum classifier score for a window to count as
	// speech. A score equal to the threshold counts as speech.
	Threshold float64

	// MinSpeech is the accumulated speech needed before an utterance opens.
	MinSpeech time.Duration

	// MinSilence is the trailing silence that closes an open utterance.
	MinSilence time.Duration
}

// DefaultConfig returns the 16 kHz defaults: threshold 0.5, 250 ms of speech
// to open an utterance and 1 s of silence to close it.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		Threshold:  0.5,
		MinSpeech:  250 * time.Millisecond,
		MinSilence: time.Second,
	}
}

// WindowSamples returns the analysis window length for sampleRate: 512
// samples at 16 kHz and 256 at 8 kHz.
func WindowSamples(sampleRate int) int {
	if sampleRate == 16000 {
		return 512
	}
	return 256
}

// State is a snapshot of a Detector's counters.
type State struct {
	Speaking      bool
	SpeechFrames  int
	SilenceFrames int

	// Buffered is the number of bytes held for the in-progress utterance.
	Buffered int

	// Pending is the number of raw input bytes not yet sliced into a window.
	Pending int
}

// Detector is the utterance segmenter.
type Detector struct {
	cfg        Config
	classifier Classifier

	windowBytes int
	frameDur    time.Duration

	raw       []byte
	utterance []byte

	speaking      bool
	speechFrames  int
	silenceFrames int
}

// New returns a Detector scoring windows with c.
func New(c Classifier, cfg Config) (*Detector, error) {
	if c == nil {
		return nil, errors.New("vad: classifier must not be nil")
	}
	if cfg.SampleRate != 16000 && cfg.SampleRate != 8000 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSampleRate, cfg.SampleRate)
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("vad: threshold %v outside [0, 1]", cfg.Threshold)
	}
	samples := WindowSamples(cfg.SampleRate)
	return &Detector{
		cfg:         cfg,
		classifier:  c,
		windowBytes: samples * 2,
		frameDur:    time.Duration(samples) * time.Second / time.Duration(cfg.SampleRate),
	}, nil
}

// WindowBytes returns the size of one analysis window in bytes.
func (d *Detector) WindowBytes() int { return d.windowBytes }

// FrameDuration returns the playback length of one analysis window.
func (d *Detector) FrameDuration() time.Duration { return d.frameDur }

// State returns a snapshot of the detector's counters.
func (d *Detector) State() State {
	return State{
		Speaking:      d.speaking,
		SpeechFrames:  d.speechFrames,
		SilenceFrames: d.silenceFrames,
		Buffered:      len(d.utterance),
		Pending:       len(d.raw),
	}
}

// ProcessChunk appends chunk to the raw buffer and classifies every complete
// window it now holds. Chunks need no alignment; partial windows are kept for
// the next call.
//
// When a window closes an utterance, ProcessChunk stops and returns the
// utterance as a WAV container. Bytes after that window stay buffered and are
// classified on the next call. Otherwise it returns nil.
//
// A classifier error discards the failing window, fully resets the detector
// and is returned. Unconsumed raw bytes survive the reset.
func (d *Detector) ProcessChunk(chunk []byte) ([]byte, error) {
	d.raw = append(d.raw, chunk...)

	for len(d.raw) >= d.windowBytes {
		window := d.raw[:d.windowBytes:d.windowBytes]
		d.raw = d.raw[d.windowBytes:]

		utt, err := d.processWindow(window)
		if err != nil {
			d.Reset()
			return nil, err
		}
		if utt != nil {
			d.compact()
			return utt, nil
		}
	}
	d.compact()
	return nil, nil
}

func (d *Detector) processWindow(window []byte) ([]byte, error) {
	p, err := d.classifier.Classify(window)
	if err != nil {
		return nil, fmt.Errorf("vad: classify: %w", err)
	}

	if p >= d.cfg.Threshold {
		d.utterance = append(d.utterance, window...)
		d.speechFrames++
		d.silenceFrames = 0
		if !d.speaking && time.Duration(d.speechFrames)*d.frameDur >= d.cfg.MinSpeech {
			d.speaking = true
		}
		return nil, nil
	}

	if !d.speaking {
		// A blip too short to open an utterance.
		d.speechFrames = 0
		d.utterance = d.utterance[:0]
		return nil, nil
	}

	d.utterance = append(d.utterance, window...)
	d.silenceFrames++
	if time.Duration(d.silenceFrames)*d.frameDur < d.cfg.MinSilence {
		return nil, nil
	}

	wav := audio.EncodeWAV(d.utterance, d.cfg.SampleRate, 1)
	d.Reset()
	return wav, nil
}

// Remaining flushes an in-progress utterance at end of stream even though its
// trailing silence never arrived. It returns nil when the detector is not
// speaking, so a second call after a flush returns nil.
func (d *Detector) Remaining() []byte {
	if !d.speaking || len(d.utterance) == 0 {
		return nil
	}
	wav := audio.EncodeWAV(d.utterance, d.cfg.SampleRate, 1)
	d.Reset()
	return wav
}

// Reset drops the in-progress utterance, zeroes the counters and resets the
// classifier. Raw bytes not yet sliced into windows are kept.
func (d *Detector) Reset() {
	d.resetCounters()
	d.classifier.Reset()
}

// ClearBuffers drops all buffered audio, including unconsumed raw bytes, and
// zeroes the counters. The classifier state is left untouched.
func (d *Detector) ClearBuffers() {
	d.raw = nil
	d.resetCounters()
}

func (d *Detector) resetCounters() {
	d.speaking = false
	d.speechFrames = 0
	d.silenceFrames = 0
	d.utterance = nil
}

// compact copies the unconsumed tail of the raw buffer to the front so the
// backing array does not grow without bound on long sessions.
func (d *Detector) compact() {
	if cap(d.raw) > 4*d.windowBytes && len(d.raw) < d.windowBytes {
		d.raw = append(make([]byte, 0, d.windowBytes), d.raw...)
	}
}
