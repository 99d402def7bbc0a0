// Package indicf5 is a TTS client for a hosted IndicF5 service. The service
// takes a JSON body on POST and answers with WAV bytes. An optional reference
// clip and its transcript select the voice to clone.
package indicf5

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultTimeout = 120 * time.Second
	maxErrorBody   = 512
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 120 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithReference sets the voice reference clip (raw audio bytes) and its
// transcript. Both are optional.
func WithReference(audio []byte, text string) Option {
	return func(p *Provider) {
		if len(audio) > 0 {
			p.refAudio = base64.StdEncoding.EncodeToString(audio)
		}
		p.refText = text
	}
}

// WithHTTPClient replaces the HTTP client. A WithTimeout value is applied to
// a copy of c; otherwise c is used unchanged.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider against an IndicF5 endpoint.
// It is safe for concurrent use.
type Provider struct {
	url        string
	refAudio   string
	refText    string
	httpClient *http.Client
	timeout    time.Duration
}

// New returns a Provider that posts to endpoint. Unlike the other clients,
// IndicF5 deployments serve synthesis on the root path, so endpoint is used
// as given.
func New(endpoint string, opts ...Option) (*Provider, error) {
	if endpoint == "" {
		return nil, errors.New("indicf5: endpoint must not be empty")
	}
	p := &Provider{
		url: endpoint,
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

type synthesizeRequest struct {
	Text     string `json:"text"`
	RefAudio string `json:"ref_audio,omitempty"`
	RefText  string `json:"ref_text,omitempty"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, RefAudio: p.refAudio, RefText: p.refText})
	if err != nil {
		return nil, fmt.Errorf("indicf5: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("indicf5: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indicf5: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("indicf5: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("indicf5: read audio: %w", err)
	}
	return audio, nil
}

// Health probes GET {base}/health, where base is the endpoint with any path
// removed.
func (p *Provider) Health(ctx context.Context) error {
	base := p.url
	if i := strings.Index(base, "://"); i >= 0 {
		if j := strings.IndexByte(base[i+3:], '/'); j >= 0 {
			base = base[:i+3+j]
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return fmt.Errorf("indicf5: build health request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("indicf5: health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("indicf5: health returned HTTP %d", resp.StatusCode)
	}
	return nil
}
