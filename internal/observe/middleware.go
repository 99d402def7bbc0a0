package observe

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the request's trace ID back to the client.
const CorrelationHeader = "X-Correlation-ID"

// unmatchedRoute labels requests that no mux pattern served.
const unmatchedRoute = "unmatched"

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middleware)

// WithAccessLog sets the logger for request lines. Defaults to slog.Default().
func WithAccessLog(l *slog.Logger) MiddlewareOption {
	return func(m *middleware) { m.log = l }
}

// WithQuietRoutes logs successful requests on the given mux patterns at
// debug level, keeping probe and scrape traffic out of the info log.
func WithQuietRoutes(patterns ...string) MiddlewareOption {
	return func(m *middleware) { m.quiet = append(m.quiet, patterns...) }
}

type middleware struct {
	metrics *Metrics
	log     *slog.Logger
	quiet   []string
	prop    propagation.TextMapPropagator
}

// Middleware traces, times and logs every request passing through an
// [http.ServeMux]. Incoming W3C trace context is honoured and the trace ID
// is returned in [CorrelationHeader]. Metrics and span names use the mux
// pattern that matched, not the raw path. WebSocket upgrades are timed
// over the whole session.
func Middleware(m *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mw := &middleware{metrics: m, prop: propagation.TraceContext{}}
	for _, o := range opts {
		o(mw)
	}
	if mw.log == nil {
		mw.log = slog.Default()
	}
	return mw.wrap
}

func (mw *middleware) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := mw.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := StartSpan(ctx, "HTTP "+r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(semconv.HTTPRequestMethodKey.String(r.Method), semconv.URLPath(r.URL.Path)),
		)
		defer span.End()

		if cid := CorrelationID(ctx); cid != "" {
			w.Header().Set(CorrelationHeader, cid)
		}
		mw.prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		req := r.WithContext(ctx)
		next.ServeHTTP(rw, req)

		// ServeMux records the matched pattern on the request it was given.
		route := req.Pattern
		if route == "" {
			route = unmatchedRoute
		}
		elapsed := time.Since(start)

		span.SetName("HTTP " + route)
		span.SetAttributes(semconv.HTTPRoute(route), semconv.HTTPResponseStatusCode(rw.status))
		mw.metrics.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
		))

		msg, level := "http request", slog.LevelInfo
		if rw.hijacked {
			msg = "websocket closed"
		}
		if rw.status < http.StatusBadRequest && slices.Contains(mw.quiet, route) {
			level = slog.LevelDebug
		}
		mw.log.LogAttrs(ctx, level, msg,
			slog.String("trace_id", CorrelationID(ctx)),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", rw.status),
			slog.Duration("duration", elapsed),
		)
	})
}

// responseWriter records the status code and whether the connection was
// taken over by a WebSocket upgrade.
type responseWriter struct {
	http.ResponseWriter
	status   int
	hijacked bool
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := http.NewResponseController(rw.ResponseWriter).Hijack()
	if err == nil {
		rw.hijacked = true
		rw.status = http.StatusSwitchingProtocols
	}
	return conn, brw, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
