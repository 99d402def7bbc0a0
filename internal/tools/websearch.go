package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/types"
)

// WebSearchName is the tool name the model sees for web search.
const WebSearchName = "web_search"

// DefaultTavilyEndpoint is the Tavily search API.
const DefaultTavilyEndpoint = "https://api.tavily.com/search"

// SearchOption configures [WebSearch].
type SearchOption func(*searcher)

// WithSearchEndpoint overrides the Tavily endpoint.
func WithSearchEndpoint(url string) SearchOption {
	return func(s *searcher) { s.endpoint = url }
}

// WithSearchRate caps outgoing search requests at rps per second, shared by
// every caller of the tool. Callers over the limit wait for a slot or for
// their context to end. rps <= 0 means unlimited.
func WithSearchRate(rps float64) SearchOption {
	return func(s *searcher) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			s.limiter = nil
		}
	}
}

// WithSearchHTTPClient replaces the HTTP client.
func WithSearchHTTPClient(c *http.Client) SearchOption {
	return func(s *searcher) { s.client = c }
}

type searcher struct {
	apiKey     string
	maxResults int
	endpoint   string
	client     *http.Client
	limiter    *rate.Limiter
}

type searchRequest struct {
	APIKey     string `json:"api_key,omitempty"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// WebSearch returns a builtin that queries Tavily and hands the model a
// plain-text digest of the top results.
func WebSearch(apiKey string, maxResults int, opts ...SearchOption) Builtin {
	s := &searcher{
		apiKey:     apiKey,
		maxResults: maxResults,
		endpoint:   DefaultTavilyEndpoint,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return Builtin{
		Definition: types.ToolDefinition{
			Name:        WebSearchName,
			Description: "Search the web for current events or specific facts. Returns the most relevant snippets.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query.",
					},
				},
				"required": []string{"query"},
			},
		},
		Handler: s.search,
	}
}

func (s *searcher) search(ctx context.Context, args string) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return "", fmt.Errorf("web_search: invalid args: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", errors.New("web_search: query must not be empty")
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("web_search: rate limit: %w", err)
		}
	}

	body, err := json.Marshal(searchRequest{APIKey: s.apiKey, Query: in.Query, MaxResults: s.maxResults})
	if err != nil {
		return "", fmt.Errorf("web_search: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("web_search: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("web_search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("web_search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("web_search: decode response: %w", err)
	}

	var sb strings.Builder
	if out.Answer != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", out.Answer)
	}
	for i, r := range out.Results {
		fmt.Fprintf(&sb, "[%d] %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Content)
	}
	if sb.Len() == 0 {
		return "No results found.", nil
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
