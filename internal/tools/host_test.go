package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/types"
)

func echoTool(name string) Builtin {
	return Builtin{
		Definition: types.ToolDefinition{Name: name, Description: "echoes its args"},
		Handler: func(_ context.Context, args string) (string, error) {
			return args, nil
		},
	}
}

func failTool(name string) Builtin {
	return Builtin{
		Definition: types.ToolDefinition{Name: name},
		Handler: func(context.Context, string) (string, error) {
			return "", errors.New("backend unavailable")
		},
	}
}

func TestRegisterBuiltin_Validation(t *testing.T) {
	t.Parallel()

	h := New()
	if err := h.RegisterBuiltin(Builtin{Handler: echoTool("x").Handler}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := h.RegisterBuiltin(Builtin{Definition: types.ToolDefinition{Name: "x"}}); err == nil {
		t.Error("expected error for nil handler")
	}
}

func TestDefinitions_Sorted(t *testing.T) {
	t.Parallel()

	h := New()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		if err := h.RegisterBuiltin(echoTool(n)); err != nil {
			t.Fatal(err)
		}
	}
	defs := h.Definitions()
	got := make([]string, len(defs))
	for i, d := range defs {
		got[i] = d.Name
	}
	if strings.Join(got, ",") != "alpha,mid,zeta" {
		t.Errorf("definitions = %v, want alpha,mid,zeta", got)
	}
}

func TestExecute(t *testing.T) {
	t.Parallel()

	h := New()
	_ = h.RegisterBuiltin(echoTool("echo"))
	_ = h.RegisterBuiltin(failTool("broken"))

	tests := []struct {
		name    string
		tool    string
		args    string
		want    string
		wantErr error
	}{
		{name: "builtin output", tool: "echo", args: `{"a":1}`, want: `{"a":1}`},
		{name: "builtin failure becomes text", tool: "broken", args: `{}`, want: "error: backend unavailable"},
		{name: "unknown tool", tool: "missing", args: `{}`, wantErr: ErrUnknownTool},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := h.Execute(context.Background(), tc.tool, tc.args)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRegisterServer_Validation(t *testing.T) {
	t.Parallel()

	h := New()
	tests := []struct {
		name string
		cfg  ServerConfig
	}{
		{name: "empty name", cfg: ServerConfig{Transport: TransportStdio, Command: "x"}},
		{name: "stdio without command", cfg: ServerConfig{Name: "s", Transport: TransportStdio}},
		{name: "http without url", cfg: ServerConfig{Name: "s", Transport: TransportStreamableHTTP}},
		{name: "unknown transport", cfg: ServerConfig{Name: "s", Transport: "carrier-pigeon"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := h.RegisterServer(context.Background(), tc.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClose_ClearsRegistry(t *testing.T) {
	t.Parallel()

	h := New()
	_ = h.RegisterBuiltin(echoTool("echo"))
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := len(h.Definitions()); n != 0 {
		t.Errorf("definitions after close = %d, want 0", n)
	}
}

func TestSchemaToMap(t *testing.T) {
	t.Parallel()

	type schema struct {
		Type string `json:"type"`
	}
	if m := schemaToMap(nil); m["type"] != "object" {
		t.Errorf("nil schema = %v", m)
	}
	if m := schemaToMap(schema{Type: "object"}); m["type"] != "object" {
		t.Errorf("struct schema = %v", m)
	}
	in := map[string]any{"type": "object", "required": []string{"q"}}
	if m := schemaToMap(in); len(m) != 2 {
		t.Errorf("map schema = %v", m)
	}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()

	exe, args := splitCommand("  /bin/server --port 9 ")
	if exe != "/bin/server" || len(args) != 2 || args[1] != "9" {
		t.Errorf("got %q %v", exe, args)
	}
	if exe, _ := splitCommand("   "); exe != "" {
		t.Errorf("blank command exe = %q", exe)
	}
}

func TestWebSearch(t *testing.T) {
	t.Parallel()

	var gotReq searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"answer":"It is sunny.","results":[{"title":"Weather","url":"https://example.com","content":"Clear skies in Bengaluru."}]}`))
	}))
	defer srv.Close()

	b := WebSearch("tvly-test", 3, WithSearchEndpoint(srv.URL), WithSearchHTTPClient(srv.Client()))
	if b.Definition.Name != WebSearchName {
		t.Fatalf("name = %q", b.Definition.Name)
	}
	out, err := b.Handler(context.Background(), `{"query":"bengaluru weather"}`)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotReq.Query != "bengaluru weather" || gotReq.MaxResults != 3 || gotReq.APIKey != "tvly-test" {
		t.Errorf("request = %+v", gotReq)
	}
	for _, want := range []string{"Summary: It is sunny.", "[1] Weather", "Clear skies in Bengaluru."} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestWebSearch_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := WebSearch("", 0, WithSearchEndpoint(srv.URL))
	if _, err := b.Handler(context.Background(), `{"query":"x"}`); err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status 429", err)
	}
	if _, err := b.Handler(context.Background(), `{"query":"  "}`); err == nil {
		t.Error("expected error for blank query")
	}
	if _, err := b.Handler(context.Background(), `not json`); err == nil {
		t.Error("expected error for bad args")
	}
}

func TestWebSearch_NoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	out, err := WebSearch("", 0, WithSearchEndpoint(srv.URL)).Handler(context.Background(), `{"query":"x"}`)
	if err != nil || out != "No results found." {
		t.Errorf("got %q, %v", out, err)
	}
}

func TestWebSearch_RateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	search := WebSearch("", 0, WithSearchEndpoint(srv.URL), WithSearchRate(0.5)).Handler
	if _, err := search(context.Background(), `{"query":"first"}`); err != nil {
		t.Fatalf("first search: %v", err)
	}

	// The next slot is two seconds away; a short deadline must give up.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := search(ctx, `{"query":"second"}`)
	if err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Fatalf("second search err = %v, want a rate limit error", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("search API calls = %d, want 1", n)
	}
}
