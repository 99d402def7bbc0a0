// Package mock provides a test double for agent.Toolbox.
package mock

import (
	"context"
	"sync"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/types"
)

// ExecuteCall records one Execute invocation.
type ExecuteCall struct {
	Name string
	Args string
}

// Toolbox is a mock tool registry.
type Toolbox struct {
	mu sync.Mutex

	// Defs is returned by Definitions.
	Defs []types.ToolDefinition

	// Results maps a tool name to its output.
	Results map[string]string

	// Errs maps a tool name to an Execute error.
	Errs map[string]error

	// Calls records every Execute call in order.
	Calls []ExecuteCall
}

// Definitions returns Defs.
func (t *Toolbox) Definitions() []types.ToolDefinition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.ToolDefinition(nil), t.Defs...)
}

// Execute records the call and returns the scripted result.
func (t *Toolbox) Execute(_ context.Context, name, args string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, ExecuteCall{Name: name, Args: args})
	if err, ok := t.Errs[name]; ok {
		return "", err
	}
	return t.Results[name], nil
}

// CallCount returns the number of Execute calls.
func (t *Toolbox) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}
