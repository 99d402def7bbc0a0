// Package llm defines the Provider interface for chat-completion backends.
//
// The agent only needs whole completions, optionally with tool calls; it
// never streams tokens, so the interface is a single request/response call.
// Implementations must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/types"
)

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs for one completion.
type CompletionRequest struct {
	// Messages is the ordered conversation history.
	Messages []types.Message

	// Tools is the set of tools the model may call.
	Tools []types.ToolDefinition

	// Temperature, when non-nil, is sent explicitly. A nil value leaves the
	// provider default in place; use [Temperature] to request exactly 0.
	Temperature *float64

	// MaxTokens caps completion tokens. Zero means provider default.
	MaxTokens int

	// SystemPrompt is prepended as a system-role message.
	SystemPrompt string
}

// Temperature returns a pointer to t for use in [CompletionRequest].
func Temperature(t float64) *float64 { return &t }

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	// Content is the assistant's text. Empty when the reply is tool calls only.
	Content string

	// ToolCalls lists the tools the model wants invoked.
	ToolCalls []types.ToolCall

	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req and waits for the full response. It returns promptly
	// with an error when ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
