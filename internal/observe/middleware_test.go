package observe

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer provider as the global one for the
// duration of the test. Tests calling it must not run in parallel.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// testMux routes /voice/{id} and GET /healthz and fails /broken.
func testMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {})
	mux.HandleFunc("/voice/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return mux
}

func TestMiddleware_RouteLabels(t *testing.T) {
	exp := useTracer(t)
	m, reader := newTestMetrics(t)
	h := Middleware(m, WithAccessLog(slog.New(slog.DiscardHandler)))(testMux())

	tests := []struct {
		path   string
		route  string
		status int
	}{
		{"/voice/abc", "/voice/{id}", http.StatusAccepted},
		{"/voice/def", "/voice/{id}", http.StatusAccepted},
		{"/nowhere", unmatchedRoute, http.StatusNotFound},
	}
	for _, tc := range tests {
		exp.Reset()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.status {
			t.Errorf("%s: code = %d, want %d", tc.path, rec.Code, tc.status)
		}
		spans := exp.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("%s: spans = %d, want 1", tc.path, len(spans))
		}
		if want := "HTTP " + tc.route; spans[0].Name != want {
			t.Errorf("%s: span name = %q, want %q", tc.path, spans[0].Name, want)
		}
		var gotStatus int64
		for _, a := range spans[0].Attributes {
			if a.Key == "http.response.status_code" {
				gotStatus = a.Value.AsInt64()
			}
		}
		if gotStatus != int64(tc.status) {
			t.Errorf("%s: span status attribute = %d, want %d", tc.path, gotStatus, tc.status)
		}
	}

	met := findMetric(collect(t, reader), "voiceagent.http.request.duration")
	if met == nil {
		t.Fatal("duration metric not recorded")
	}
	counts := map[string]uint64{}
	for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
		route, _ := dp.Attributes.Value("route")
		counts[route.AsString()] += dp.Count
	}
	if counts["/voice/{id}"] != 2 || counts[unmatchedRoute] != 1 {
		t.Errorf("per-route counts = %v, want two templated and one unmatched", counts)
	}
}

func TestMiddleware_CorrelationID(t *testing.T) {
	useTracer(t)
	m, _ := newTestMetrics(t)
	h := Middleware(m, WithAccessLog(slog.New(slog.DiscardHandler)))

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	tests := []struct {
		name        string
		traceparent string
		want        string
	}{
		{"new trace", "", ""},
		{"propagated", "00-" + traceID + "-00f067aa0ba902b7-01", traceID},
	}
	for _, tc := range tests {
		var inside string
		srv := h(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			inside = CorrelationID(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.traceparent != "" {
			req.Header.Set("traceparent", tc.traceparent)
		}
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if len(inside) != 32 {
			t.Errorf("%s: correlation ID %q is not a trace ID", tc.name, inside)
		}
		if tc.want != "" && inside != tc.want {
			t.Errorf("%s: correlation ID = %q, want %q", tc.name, inside, tc.want)
		}
		if got := rec.Header().Get(CorrelationHeader); got != inside {
			t.Errorf("%s: header = %q, want %q", tc.name, got, inside)
		}
	}
}

func TestMiddleware_QuietRoutes(t *testing.T) {
	useTracer(t)
	m, _ := newTestMetrics(t)
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := Middleware(m, WithAccessLog(log), WithQuietRoutes("GET /healthz", "/broken"))(testMux())

	for _, path := range []string{"/healthz", "/broken", "/voice/x"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := buf.String()
	if strings.Contains(out, "route=\"GET /healthz\"") {
		t.Errorf("quiet probe logged at info:\n%s", out)
	}
	if !strings.Contains(out, "route=/broken") {
		t.Errorf("failing quiet route must still be logged:\n%s", out)
	}
	if !strings.Contains(out, "route=/voice/{id}") {
		t.Errorf("normal route not logged:\n%s", out)
	}
}

func TestMiddleware_WebSocketUpgrade(t *testing.T) {
	useTracer(t)
	m, _ := newTestMetrics(t)
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, _ *http.Request) {
		conn, brw, err := http.NewResponseController(w).Hijack()
		if err != nil {
			t.Errorf("hijack through middleware: %v", err)
			return
		}
		defer conn.Close()
		_, _ = brw.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok")
		_ = brw.Flush()
	})
	done := make(chan struct{})
	h := Middleware(m, WithAccessLog(log))(mux)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		h.ServeHTTP(w, r)
	}))
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("GET /ws HTTP/1.1\r\nHost: test\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp.Body.Close()
	<-done

	if out := buf.String(); !strings.Contains(out, "websocket closed") || !strings.Contains(out, "status=101") {
		t.Errorf("upgrade not logged as a websocket session:\n%s", out)
	}
}
