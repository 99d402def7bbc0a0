package indicf5_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/audio"
	"github.com/akshay-mp/kannada-voice-agent-ai4bharath-indic-models/pkg/provider/tts/indicf5"
)

func TestSynthesize(t *testing.T) {
	t.Parallel()

	wav := audio.EncodeWAV(audio.Tone(160, 1000), 24000, 1)
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/synth" {
			t.Errorf("request = %s %s, want POST /synth", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := indicf5.New(srv.URL+"/synth", indicf5.WithReference([]byte("ref"), "ಉಲ್ಲೇಖ"))
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	out, err := p.Synthesize(context.Background(), "ಹನ್ನೊಂದು")
	if err != nil {
		t.Fatalf("Synthesize: unexpected error: %v", err)
	}
	if !bytes.Equal(out, wav) {
		t.Errorf("audio = %d bytes, want %d", len(out), len(wav))
	}
	if got["text"] != "ಹನ್ನೊಂದು" {
		t.Errorf("text = %q", got["text"])
	}
	if got["ref_audio"] != base64.StdEncoding.EncodeToString([]byte("ref")) || got["ref_text"] != "ಉಲ್ಲೇಖ" {
		t.Errorf("reference fields = %q / %q", got["ref_audio"], got["ref_text"])
	}
}

func TestSynthesize_OmitsEmptyReference(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte("RIFF"))
	}))
	defer srv.Close()

	p, _ := indicf5.New(srv.URL)
	if _, err := p.Synthesize(context.Background(), "x"); err != nil {
		t.Fatalf("Synthesize: unexpected error: %v", err)
	}
	if _, ok := got["ref_audio"]; ok {
		t.Error("ref_audio present, want omitted")
	}
	if _, ok := got["ref_text"]; ok {
		t.Error("ref_text present, want omitted")
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	p, _ := indicf5.New(srv.URL)
	if _, err := p.Synthesize(context.Background(), "x"); err == nil {
		t.Error("Synthesize: want error on 504, got nil")
	}
}

func TestHealth_UsesHostRoot(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p, _ := indicf5.New(srv.URL + "/v1/synthesize")
	if err := p.Health(context.Background()); err != nil {
		t.Errorf("Health: unexpected error: %v", err)
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
		order func(hc *http.Client) []indicf5.Option
	}{
		{"timeout first", func(hc *http.Client) []indicf5.Option {
			return []indicf5.Option{indicf5.WithTimeout(50 * time.Millisecond), indicf5.WithHTTPClient(hc)}
		}},
		{"client first", func(hc *http.Client) []indicf5.Option {
			return []indicf5.Option{indicf5.WithHTTPClient(hc), indicf5.WithTimeout(50 * time.Millisecond)}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			shared := &http.Client{}
			p, err := indicf5.New(srv.URL, tc.order(shared)...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			start := time.Now()
			if _, err := p.Synthesize(context.Background(), "ನಮಸ್ಕಾರ"); err == nil {
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
