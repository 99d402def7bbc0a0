package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
)

func TestStartStage(t *testing.T) {
	exp := useTracer(t)

	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"success", nil, codes.Unset},
		{"failure", errors.New("indictrans: HTTP 502"), codes.Error},
	}
	for _, tc := range tests {
		exp.Reset()
		ctx, span := StartStage(context.Background(), StageTranslate, "indictrans")
		if CorrelationID(ctx) == "" {
			t.Fatalf("%s: stage span has no trace ID", tc.name)
		}
		EndStage(span, tc.err)

		spans := exp.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("%s: spans = %d, want 1", tc.name, len(spans))
		}
		s := spans[0]
		if s.Name != "pipeline.translate" {
			t.Errorf("%s: name = %q", tc.name, s.Name)
		}
		if s.Status.Code != tc.code {
			t.Errorf("%s: status = %v, want %v", tc.name, s.Status.Code, tc.code)
		}
		attrs := map[string]string{}
		for _, a := range s.Attributes {
			attrs[string(a.Key)] = a.Value.AsString()
		}
		if attrs["stage"] != StageTranslate || attrs["provider"] != "indictrans" {
			t.Errorf("%s: attributes = %v", tc.name, attrs)
		}
		if tc.err != nil && len(s.Events) == 0 {
			t.Errorf("%s: error not recorded on span", tc.name)
		}
	}
}

func TestCorrelationID_Unique(t *testing.T) {
	useTracer(t)

	seen := make(map[string]bool, 50)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "turn")
		id := CorrelationID(ctx)
		span.End()
		if id == "" || seen[id] {
			t.Fatalf("correlation ID %q is empty or repeated", id)
		}
		seen[id] = true
	}
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without a span = %q, want empty", got)
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	Logger(context.Background(), base).Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("logger without span added trace_id: %s", buf.String())
	}
	buf.Reset()

	ctx, span := StartSpan(context.Background(), "session")
	defer span.End()
	Logger(ctx, base).Info("with span")
	out := buf.String()
	if !strings.Contains(out, "trace_id="+CorrelationID(ctx)) || !strings.Contains(out, "span_id=") {
		t.Errorf("logger missing trace fields: %s", out)
	}

	if Logger(context.Background(), nil) != slog.Default() {
		t.Error("nil base should fall back to slog.Default()")
	}
}
