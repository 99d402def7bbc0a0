package indicconformer_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/stt/indicconformer"
)

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := indicconformer.New(""); err == nil {
		t.Error("New(\"\"): want error, got nil")
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transcribe" {
			t.Errorf("request = %s %s, want POST /transcribe", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"transcription":"ಹವಾಮಾನ ಹೇಗಿದೆ"}`))
	}))
	defer srv.Close()

	p, err := indicconformer.New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	text, err := p.Transcribe(context.Background(), []byte("RIFFxxxx"), "kn")
	if err != nil {
		t.Fatalf("Transcribe: unexpected error: %v", err)
	}
	if text != "ಹವಾಮಾನ ಹೇಗಿದೆ" {
		t.Errorf("text = %q, want %q", text, "ಹವಾಮಾನ ಹೇಗಿದೆ")
	}
	if got["audio_b64"] != base64.StdEncoding.EncodeToString([]byte("RIFFxxxx")) {
		t.Errorf("audio_b64 = %q, want base64 of input", got["audio_b64"])
	}
	if got["language"] != "kn" || got["decoding"] != "ctc" {
		t.Errorf("language/decoding = %q/%q, want kn/ctc", got["language"], got["decoding"])
	}
}

func TestTranscribe_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantSub string
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model loading", http.StatusServiceUnavailable)
			},
			wantSub: "HTTP 503",
		},
		{
			name: "missing field",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"text":"x"}`))
			},
			wantSub: "no transcription",
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			wantSub: "request",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			p, _ := indicconformer.New(srv.URL, indicconformer.WithTimeout(50*time.Millisecond))
			_, err := p.Transcribe(context.Background(), []byte("a"), "kn")
			if err == nil {
				t.Fatal("Transcribe: want error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("err = %v, want substring %q", err, tc.wantSub)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	p, _ := indicconformer.New(srv.URL)
	if err := p.Health(context.Background()); err != nil {
		t.Errorf("Health: unexpected error: %v", err)
	}
	status.Store(http.StatusBadGateway)
	if err := p.Health(context.Background()); err == nil {
		t.Error("Health with 502: want error, got nil")
	}
}

func TestNew_TimeoutAppliesInAnyOptionOrder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name  string
		order func(hc *http.Client) []indicconformer.Option
	}{
		{"timeout first", func(hc *http.Client) []indicconformer.Option {
			return []indicconformer.Option{indicconformer.WithTimeout(50 * time.Millisecond), indicconformer.WithHTTPClient(hc)}
		}},
		{"client first", func(hc *http.Client) []indicconformer.Option {
			return []indicconformer.Option{indicconformer.WithHTTPClient(hc), indicconformer.WithTimeout(50 * time.Millisecond)}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			shared := &http.Client{}
			p, err := indicconformer.New(srv.URL, tc.order(shared)...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			start := time.Now()
			if _, err := p.Transcribe(context.Background(), []byte("RIFF"), "kn"); err == nil {
				t.Fatal("want timeout error, got nil")
			}
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("request took %v, timeout not applied", elapsed)
			}
			if shared.Timeout != 0 {
				t.Errorf("caller's client Timeout = %v, want it untouched", shared.Timeout)
			}
		})
	}
}
