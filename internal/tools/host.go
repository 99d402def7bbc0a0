// Package tools hosts the tools the agent may call.
//
// Tools come from two places: in-process Go functions registered with
// [Host.RegisterBuiltin] (such as the web search tool) and external MCP
// servers connected over stdio or streamable HTTP with
// [Host.RegisterServer]. Either way a tool is an opaque callable: a JSON
// argument object in, text out.
//
// Typical usage:
//
//	h := tools.New()
//	defer h.Close()
//	_ = h.RegisterBuiltin(tools.WebSearch(tavilyKey, 5))
//	_ = h.RegisterServer(ctx, tools.ServerConfig{
//	    Name:      "calendar",
//	    Transport: tools.TransportStdio,
//	    Command:   "/usr/local/bin/mcp-calendar",
//	})
//	out, err := h.Execute(ctx, "web_search", `{"query":"bengaluru weather"}`)
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/types"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and talks over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP uses the MCP streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes an external MCP server.
type ServerConfig struct {
	Name      string
	Transport Transport

	// Command is the executable plus arguments for stdio servers.
	Command string

	// URL is the endpoint for streamable-http servers.
	URL string

	// Env holds extra environment variables for stdio servers.
	Env map[string]string
}

// ErrUnknownTool is returned by [Host.Execute] for unregistered tool names.
var ErrUnknownTool = errors.New("tools: unknown tool")

// Builtin is a tool implemented as an in-process Go function.
type Builtin struct {
	// Definition is shown to the model.
	Definition types.ToolDefinition

	// Handler runs the tool. args is a JSON object string. A returned error
	// is reported to the model as the tool's output, not as a Go error.
	Handler func(ctx context.Context, args string) (string, error)
}

type entry struct {
	def     types.ToolDefinition
	server  string
	builtin func(ctx context.Context, args string) (string, error)
}

// Host is a concurrency-safe tool registry. Create one with [New].
type Host struct {
	mu       sync.RWMutex
	tools    map[string]entry
	sessions map[string]*mcpsdk.ClientSession

	client *mcpsdk.Client
}

// New returns an empty Host.
func New() *Host {
	return &Host{
		tools:    make(map[string]entry),
		sessions: make(map[string]*mcpsdk.ClientSession),
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "voiceagent-tools", Version: "1.0.0"},
			nil,
		),
	}
}

// RegisterBuiltin adds or replaces an in-process tool.
func (h *Host) RegisterBuiltin(b Builtin) error {
	if b.Definition.Name == "" {
		return errors.New("tools: builtin tool must have a non-empty name")
	}
	if b.Handler == nil {
		return fmt.Errorf("tools: builtin tool %q must have a non-nil handler", b.Definition.Name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools[b.Definition.Name] = entry{def: b.Definition, builtin: b.Handler}
	return nil
}

// RegisterServer connects to an MCP server and imports its tool catalogue.
// Re-registering a server name closes the old session and replaces its
// tools.
func (h *Host) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return errors.New("tools: server config must have a non-empty name")
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		exe, args := splitCommand(cfg.Command)
		if exe == "" {
			return fmt.Errorf("tools: stdio server %q requires a command", cfg.Name)
		}
		// The subprocess must outlive ctx, which only bounds the handshake.
		cmd := exec.Command(exe, args...)
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("tools: streamable-http server %q requires a URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return fmt.Errorf("tools: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("tools: connect to server %q: %w", cfg.Name, err)
	}

	var discovered []*mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("tools: list tools of server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, tool)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[cfg.Name]; ok {
		_ = old.Close()
		for name, e := range h.tools {
			if e.server == cfg.Name {
				delete(h.tools, name)
			}
		}
	}
	h.sessions[cfg.Name] = session
	for _, t := range discovered {
		h.tools[t.Name] = entry{
			def: types.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
			server: cfg.Name,
		}
	}
	return nil
}

// Definitions returns every registered tool, sorted by name.
func (h *Host) Definitions() []types.ToolDefinition {
	h.mu.RLock()
	defer h.mu.RUnlock()
	defs := make([]types.ToolDefinition, 0, len(h.tools))
	for _, e := range h.tools {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool. Tool-level failures (a builtin returning an
// error, an MCP result flagged IsError) come back as text prefixed with
// "error: " so the model can react to them. A Go error is returned only for
// unknown tools, malformed arguments and transport failures.
func (h *Host) Execute(ctx context.Context, name, args string) (string, error) {
	h.mu.RLock()
	e, ok := h.tools[name]
	var session *mcpsdk.ClientSession
	if ok && e.builtin == nil {
		session = h.sessions[e.server]
	}
	h.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	if e.builtin != nil {
		out, err := e.builtin(ctx, args)
		if err != nil {
			return "error: " + err.Error(), nil
		}
		return out, nil
	}

	if session == nil {
		return "", fmt.Errorf("tools: server %q for tool %q is gone", e.server, name)
	}

	var argMap map[string]any
	if s := strings.TrimSpace(args); s != "" && s != "{}" {
		if err := json.Unmarshal([]byte(s), &argMap); err != nil {
			return "", fmt.Errorf("tools: invalid args for %q: %w", name, err)
		}
	}

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: argMap})
	if err != nil {
		return "", fmt.Errorf("tools: call %q: %w", name, err)
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return "error: " + sb.String(), nil
	}
	return sb.String(), nil
}

// Close shuts down every MCP session and clears the registry.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for name, s := range h.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tools: close server %q: %w", name, err))
		}
	}
	h.sessions = make(map[string]*mcpsdk.ClientSession)
	h.tools = make(map[string]entry)
	return errors.Join(errs...)
}

// schemaToMap converts an SDK schema value into a plain JSON object.
func schemaToMap(schema any) map[string]any {
	fallback := map[string]any{"type": "object"}
	if schema == nil {
		return fallback
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return fallback
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return fallback
	}
	return m
}

// splitCommand splits "/bin/foo --bar baz" into "/bin/foo" and its args.
func splitCommand(command string) (string, []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
