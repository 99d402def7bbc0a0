// Package mock provides a test double for the llm.Provider interface.
//
// Responses are consumed in order, which lets a test script a tool-calling
// exchange:
//
//	p := &mock.Provider{Responses: []*llm.CompletionResponse{
//	    {ToolCalls: []types.ToolCall{{ID: "c1", Name: "web_search", Arguments: `{"query":"x"}`}}},
//	    {Content: "It is sunny."},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned by successive Complete calls. Once exhausted,
	// CompleteResponse is returned.
	Responses []*llm.CompletionResponse

	// CompleteResponse is returned after Responses runs out. When nil, an
	// empty response is returned.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned by every call.
	CompleteErr error

	// Errors maps a zero-based call index to an error for that call only.
	Errors map[int]error

	// CompleteCalls records every call to Complete in order.
	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := len(p.CompleteCalls)
	req.Messages = append(req.Messages[:0:0], req.Messages...)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Req: req})

	if err, ok := p.Errors[i]; ok {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if i < len(p.Responses) {
		return p.Responses[i], nil
	}
	if p.CompleteResponse != nil {
		return p.CompleteResponse, nil
	}
	return &llm.CompletionResponse{}, nil
}

// CallCount returns the number of Complete calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}
