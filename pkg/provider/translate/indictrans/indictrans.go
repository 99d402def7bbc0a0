// Package indictrans is a translation client for a hosted IndicTrans2
// service. Each deployment serves one direction on POST /translate and
// answers with a list of translations, of which the first is used.
//
// Typical usage:
//
//	toEnglish, err := indictrans.New("https://example--indic-en.modal.run")
//	en, err := toEnglish.Translate(ctx, "ನಮಸ್ಕಾರ", translate.Kannada, translate.English)
package indictrans

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

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/translate"
)

var _ translate.Provider = (*Provider)(nil)

const (
	defaultTimeout = 60 * time.Second

	translateEndpoint = "/translate"
	healthEndpoint    = "/health"

	maxErrorBody = 512
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 60 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client. A WithTimeout value is applied to
// a copy of c; otherwise c is used unchanged.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements translate.Provider against an IndicTrans2 endpoint.
// It is safe for concurrent use.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// New returns a Provider for the service at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("indictrans: baseURL must not be empty")
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, o := range opts {
		o(p)
	}
	switch {
	case p.httpClient == nil:
		timeout := p.timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		p.httpClient = &http.Client{Timeout: timeout}
	case p.timeout > 0:
		c := *p.httpClient
		c.Timeout = p.timeout
		p.httpClient = &c
	}
	return p, nil
}

type translateRequest struct {
	Text    string `json:"text"`
	SrcLang string `json:"src_lang,omitempty"`
	TgtLang string `json:"tgt_lang,omitempty"`
}

type translateResponse struct {
	Translations []string `json:"translations"`
}

// Translate implements translate.Provider. Both language tags are sent; a
// single-direction deployment ignores the one it does not need.
func (p *Provider) Translate(ctx context.Context, text, srcLang, tgtLang string) (string, error) {
	body, err := json.Marshal(translateRequest{Text: text, SrcLang: srcLang, TgtLang: tgtLang})
	if err != nil {
		return "", fmt.Errorf("indictrans: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+translateEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("indictrans: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("indictrans: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("indictrans: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("indictrans: decode response: %w", err)
	}
	if len(out.Translations) == 0 {
		return "", nil
	}
	return out.Translations[0], nil
}

// Health probes GET /health and reports a non-success status as an error.
func (p *Provider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+healthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("indictrans: build health request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("indictrans: health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("indictrans: health returned HTTP %d", resp.StatusCode)
	}
	return nil
}
