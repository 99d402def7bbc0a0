// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Audio: []byte("RIFF....")}
//	p.Delay = 50 * time.Millisecond // simulate a slow model
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by every successful Synthesize call. When nil, the
	// input text bytes are returned.
	Audio []byte

	// Err, if non-nil, is returned by every call.
	Err error

	// Errors maps a zero-based call index to an error for that call only.
	Errors map[int]error

	// Delay makes each call wait before returning. The wait is cut short if
	// the context is cancelled.
	Delay time.Duration

	// Texts records the text of every call in order.
	Texts []string
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and returns the configured result.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	p.mu.Lock()
	i := len(p.Texts)
	p.Texts = append(p.Texts, text)
	delay := p.Delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.Errors[i]; ok {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Audio != nil {
		return p.Audio, nil
	}
	return []byte(text), nil
}

// CallCount returns the number of Synthesize calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Texts)
}
