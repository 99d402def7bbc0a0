// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Text: "ನಮಸ್ಕಾರ"}
//	p.Errors = map[int]error{0: errors.New("cold start")} // first call fails
package mock

import (
	"context"
	"sync"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Audio is a copy of the audio passed to Transcribe.
	Audio []byte
	// Language is the language code passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by every successful Transcribe call.
	Text string

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Errors maps a zero-based call index to an error returned by that call
	// only. It takes precedence over Err.
	Errors map[int]error

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.Calls)
	p.Calls = append(p.Calls, TranscribeCall{Audio: append([]byte(nil), audio...), Language: language})
	if err, ok := p.Errors[i]; ok {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Err != nil {
		return "", p.Err
	}
	return p.Text, nil
}

// CallCount returns the number of Transcribe calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
