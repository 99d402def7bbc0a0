// Package agent answers an English question with an LLM that may call tools.
//
// [Agent] runs a bounded reason-act loop: ask the model, run any tool calls
// it requests, feed the results back, repeat until the model answers in
// plain text or the step budget runs out. The agent holds no conversation
// state between calls, so a single instance is shared by every session.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/llm"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/types"
)

// ErrMaxSteps is returned when the model keeps requesting tools after the
// step budget is spent.
var ErrMaxSteps = errors.New("agent: step budget exhausted")

// DefaultSystemPrompt asks for short, plain, speakable English answers.
const DefaultSystemPrompt = "You are a helpful assistant. You can use the search tool to find information. " +
	"If you need to search for current events or specific data, use the search tool. " +
	"Answer concisely only based on the search results you get. " +
	"Always answer in plain English without formatting the response. " +
	"IMPORTANT: Convert all numbers to their word equivalent (e.g., say 'eleven' instead of '11', 'twenty five' instead of '25')."

// DefaultNoAnswer replaces an empty final answer.
const DefaultNoAnswer = "I couldn't find an answer to that question."

// DefaultMaxSteps is the number of model calls allowed per question.
const DefaultMaxSteps = 6

// Toolbox is the set of tools the agent may call. *tools.Host satisfies it.
type Toolbox interface {
	Definitions() []types.ToolDefinition
	Execute(ctx context.Context, name, args string) (string, error)
}

// Config tunes an [Agent].
type Config struct {
	SystemPrompt string
	MaxSteps     int
	Temperature  float64
	NoAnswer     string
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		SystemPrompt: DefaultSystemPrompt,
		MaxSteps:     DefaultMaxSteps,
		NoAnswer:     DefaultNoAnswer,
	}
}

// Step is one tool invocation made while answering.
type Step struct {
	CallID   string
	Name     string
	Args     string
	Result   string
	Duration time.Duration
}

// Reply is the agent's answer plus the tool trail that produced it.
type Reply struct {
	Text  string
	Steps []Step
	Usage llm.Usage
}

// Agent is safe for concurrent use.
type Agent struct {
	llm   llm.Provider
	tools Toolbox
	cfg   atomic.Pointer[Config]
}

// New creates an Agent. tools may be nil, in which case the model is offered
// no tools. Zero-valued fields of cfg take their defaults.
func New(p llm.Provider, tools Toolbox, cfg Config) *Agent {
	a := &Agent{llm: p, tools: tools}
	a.SetConfig(cfg)
	return a
}

// SetConfig swaps the configuration used by subsequent calls to [Agent.Respond].
func (a *Agent) SetConfig(cfg Config) {
	def := DefaultConfig()
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if cfg.NoAnswer == "" {
		cfg.NoAnswer = def.NoAnswer
	}
	a.cfg.Store(&cfg)
}

// Config returns the active configuration.
func (a *Agent) Config() Config { return *a.cfg.Load() }

// Respond answers question. On [ErrMaxSteps] the returned Reply still holds
// the steps taken so far.
func (a *Agent) Respond(ctx context.Context, question string) (*Reply, error) {
	cfg := a.Config()

	var defs []types.ToolDefinition
	if a.tools != nil {
		defs = a.tools.Definitions()
	}

	msgs := []types.Message{{Role: types.RoleUser, Content: question}}
	reply := &Reply{}

	for step := 0; step < cfg.MaxSteps; step++ {
		resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
			Messages:     msgs,
			Tools:        defs,
			Temperature:  llm.Temperature(cfg.Temperature),
			SystemPrompt: cfg.SystemPrompt,
		})
		if err != nil {
			return reply, fmt.Errorf("agent: complete: %w", err)
		}
		reply.Usage.PromptTokens += resp.Usage.PromptTokens
		reply.Usage.CompletionTokens += resp.Usage.CompletionTokens
		reply.Usage.TotalTokens += resp.Usage.TotalTokens

		if len(resp.ToolCalls) == 0 {
			reply.Text = strings.TrimSpace(resp.Content)
			if reply.Text == "" {
				reply.Text = cfg.NoAnswer
			}
			return reply, nil
		}

		calls := make([]types.ToolCall, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			if tc.ID == "" {
				tc.ID = "call_" + uuid.NewString()
			}
			calls[i] = tc
		}
		msgs = append(msgs, types.Message{Role: types.RoleAssistant, Content: resp.Content, ToolCalls: calls})

		for _, tc := range calls {
			start := time.Now()
			result := a.runTool(ctx, tc)
			reply.Steps = append(reply.Steps, Step{
				CallID:   tc.ID,
				Name:     tc.Name,
				Args:     tc.Arguments,
				Result:   result,
				Duration: time.Since(start),
			})
			msgs = append(msgs, types.Message{Role: types.RoleTool, Content: result, Name: tc.Name, ToolCallID: tc.ID})
		}
	}
	return reply, ErrMaxSteps
}

func (a *Agent) runTool(ctx context.Context, tc types.ToolCall) string {
	if a.tools == nil {
		return fmt.Sprintf("error: tool %q is not available", tc.Name)
	}
	out, err := a.tools.Execute(ctx, tc.Name, tc.Arguments)
	if err != nil {
		slog.Warn("agent: tool call failed", "tool", tc.Name, "call_id", tc.ID, "err", err)
		return "error: " + err.Error()
	}
	return out
}
