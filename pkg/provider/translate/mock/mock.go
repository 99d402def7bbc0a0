// Package mock provides a test double for the translate.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/translate"
)

// TranslateCall records a single invocation of Translate.
type TranslateCall struct {
	Text    string
	SrcLang string
	TgtLang string
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// Text, if non-empty, is returned by every successful call. When empty,
	// the input is echoed back with Prefix prepended.
	Text string

	// Prefix is prepended to echoed input, e.g. "en:".
	Prefix string

	// Err, if non-nil, is returned by every call.
	Err error

	// Errors maps a zero-based call index to an error for that call only.
	Errors map[int]error

	// Calls records every call to Translate in order.
	Calls []TranslateCall
}

var _ translate.Provider = (*Provider)(nil)

// Translate records the call and returns the configured result.
func (p *Provider) Translate(ctx context.Context, text, srcLang, tgtLang string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.Calls)
	p.Calls = append(p.Calls, TranslateCall{Text: text, SrcLang: srcLang, TgtLang: tgtLang})
	if err, ok := p.Errors[i]; ok {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Err != nil {
		return "", p.Err
	}
	if p.Text != "" {
		return p.Text, nil
	}
	return p.Prefix + text, nil
}

// Texts returns the text of every call in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}
