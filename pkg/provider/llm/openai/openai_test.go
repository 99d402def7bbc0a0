package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/llm"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/types"
)

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role  string
		check func(t *testing.T, m types.Message)
	}{
		{role: types.RoleSystem, check: func(t *testing.T, m types.Message) {
			p, _ := convertMessage(m)
			if p.OfSystem == nil {
				t.Error("OfSystem not set")
			}
		}},
		{role: types.RoleUser, check: func(t *testing.T, m types.Message) {
			p, _ := convertMessage(m)
			if p.OfUser == nil {
				t.Error("OfUser not set")
			}
		}},
		{role: types.RoleAssistant, check: func(t *testing.T, m types.Message) {
			p, _ := convertMessage(m)
			if p.OfAssistant == nil {
				t.Error("OfAssistant not set")
			}
		}},
		{role: types.RoleTool, check: func(t *testing.T, m types.Message) {
			p, _ := convertMessage(m)
			if p.OfTool == nil {
				t.Error("OfTool not set")
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			t.Parallel()
			tc.check(t, types.Message{Role: tc.role, Content: "x", ToolCallID: "call_1"})
		})
	}
}

func TestConvertMessage_AssistantToolCalls(t *testing.T) {
	t.Parallel()

	p, err := convertMessage(types.Message{
		Role:      types.RoleAssistant,
		ToolCalls: []types.ToolCall{{ID: "call_1", Name: "web_search", Arguments: `{"query":"weather"}`}},
	})
	if err != nil {
		t.Fatalf("convertMessage: unexpected error: %v", err)
	}
	if len(p.OfAssistant.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(p.OfAssistant.ToolCalls))
	}
	if tc := p.OfAssistant.ToolCalls[0]; tc.ID != "call_1" || tc.Function.Name != "web_search" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()
	if _, err := convertMessage(types.Message{Role: "narrator"}); err == nil {
		t.Error("want error for unknown role, got nil")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "m"); err == nil {
		t.Error("New with empty key: want error")
	}
	if _, err := New("k", ""); err == nil {
		t.Error("New with empty model: want error")
	}
}

const toolCallResponse = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 0,
  "model": "Qwen/Qwen3-235B-A22B-Instruct-2507",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "",
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "web_search", "arguments": "{\"query\":\"bengaluru weather\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`

func TestComplete(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(toolCallResponse))
	}))
	defer srv.Close()

	p, err := New("test-key", "Qwen/Qwen3-235B-A22B-Instruct-2507", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "be brief",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "weather?"}},
		Tools:        []types.ToolDefinition{{Name: "web_search", Description: "search", Parameters: map[string]any{"type": "object"}}},
		Temperature:  llm.Temperature(0),
	})
	if err != nil {
		t.Fatalf("Complete: unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "web_search" {
		t.Fatalf("tool calls = %+v, want one web_search call", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Arguments != `{"query":"bengaluru weather"}` {
		t.Errorf("arguments = %q", resp.ToolCalls[0].Arguments)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("total tokens = %d, want 17", resp.Usage.TotalTokens)
	}

	if temp, ok := body["temperature"]; !ok || temp != float64(0) {
		t.Errorf("temperature = %v (present %v), want explicit 0", temp, ok)
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want system + user", len(msgs))
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message role = %v, want system", first["role"])
	}
}

func TestComplete_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p, _ := New("k", "m", WithBaseURL(srv.URL+"/v1/"))
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	}); err == nil {
		t.Error("Complete: want error on 502, got nil")
	}
}

func TestWithTimeout_CopiesCallerClient(t *testing.T) {
	t.Parallel()

	shared := &http.Client{Timeout: time.Minute}
	got := withTimeout(shared, 5*time.Second)
	if got == shared {
		t.Fatal("withTimeout returned the caller's client")
	}
	if got.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", got.Timeout)
	}
	if shared.Timeout != time.Minute {
		t.Errorf("caller's Timeout = %v, want it untouched", shared.Timeout)
	}

	if withTimeout(shared, 0) != shared {
		t.Error("zero timeout should return the caller's client as is")
	}
	if withTimeout(nil, 0) != nil {
		t.Error("nil client with no timeout should stay nil")
	}
	if c := withTimeout(nil, time.Second); c == nil || c.Timeout != time.Second {
		t.Errorf("withTimeout(nil, 1s) = %+v", c)
	}
}

func TestNew_TimeoutLeavesCallerClient(t *testing.T) {
	t.Parallel()

	shared := &http.Client{}
	for _, opts := range [][]Option{
		{WithTimeout(time.Second), WithHTTPClient(shared)},
		{WithHTTPClient(shared), WithTimeout(time.Second)},
	} {
		if _, err := New("key", "model", opts...); err != nil {
			t.Fatalf("New: %v", err)
		}
	}
	if shared.Timeout != 0 {
		t.Errorf("caller's Timeout = %v, want 0", shared.Timeout)
	}
}
