// Package indicconformer is an STT client for a hosted IndicConformer
// service. The service accepts base64 WAV audio on POST /transcribe and
// answers with JSON carrying the transcription.
//
// Typical usage:
//
//	p, err := indicconformer.New("https://example--stt.modal.run",
//	    indicconformer.WithTimeout(2*time.Minute),
//	)
//	text, err := p.Transcribe(ctx, wav, "kn")
package indicconformer

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

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

const (
	defaultTimeout  = 120 * time.Second
	defaultDecoding = "ctc"

	transcribeEndpoint = "/transcribe"
	healthEndpoint     = "/health"

	// maxErrorBody caps how much of a failed response body ends up in an error.
	maxErrorBody = 512
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 120 s, which
// covers a cold start of the hosted model.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithDecoding selects the decoder ("ctc" or "rnnt"). Defaults to "ctc".
func WithDecoding(decoding string) Option {
	return func(p *Provider) {
		p.decoding = decoding
	}
}

// WithHTTPClient replaces the HTTP client. A WithTimeout value is applied to
// a copy of c; otherwise c is used unchanged.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider against an IndicConformer endpoint.
// It is safe for concurrent use.
type Provider struct {
	baseURL    string
	decoding   string
	httpClient *http.Client
	timeout    time.Duration
}

// New returns a Provider for the service at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("indicconformer: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		decoding: defaultDecoding,
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

type transcribeRequest struct {
	AudioB64 string `json:"audio_b64"`
	Language string `json:"language"`
	Decoding string `json:"decoding"`
}

type transcribeResponse struct {
	Transcription *string `json:"transcription"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	body, err := json.Marshal(transcribeRequest{
		AudioB64: base64.StdEncoding.EncodeToString(audio),
		Language: language,
		Decoding: p.decoding,
	})
	if err != nil {
		return "", fmt.Errorf("indicconformer: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+transcribeEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("indicconformer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("indicconformer: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("indicconformer: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("indicconformer: decode response: %w", err)
	}
	if out.Transcription == nil {
		return "", errors.New("indicconformer: response has no transcription field")
	}
	return *out.Transcription, nil
}

// Health probes GET /health and reports a non-success status as an error.
func (p *Provider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+healthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("indicconformer: build health request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("indicconformer: health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("indicconformer: health returned HTTP %d", resp.StatusCode)
	}
	return nil
}
