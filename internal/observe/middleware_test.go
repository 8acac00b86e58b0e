package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// tracedRouter installs an in-memory tracer provider for the test and returns
// an engine with the middleware in front of the given GET routes.
func tracedRouter(t *testing.T, m *Metrics, routes map[string]gin.HandlerFunc) (*gin.Engine, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	r := gin.New()
	r.Use(Middleware(m))
	for route, h := range routes {
		r.GET(route, h)
	}
	return r, exp
}

func get(r http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func spanAttrString(s tracetest.SpanStub, key string) (string, bool) {
	for _, a := range s.Attributes {
		if string(a.Key) == key {
			return a.Value.Emit(), true
		}
	}
	return "", false
}

func TestMiddleware_SessionRoute(t *testing.T) {
	m, reader := newTestMetrics(t)
	var sessionID, cid string
	r, exp := tracedRouter(t, m, map[string]gin.HandlerFunc{
		"/v1/sessions/:id/messages": func(c *gin.Context) {
			sessionID = SessionID(c.Request.Context())
			cid = CorrelationID(c.Request.Context())
			c.Status(http.StatusOK)
		},
	})

	rec := get(r, "/v1/sessions/sess-7/messages", nil)

	if sessionID != "sess-7" {
		t.Errorf("handler saw session %q, want sess-7", sessionID)
	}
	if len(cid) != 32 || rec.Header().Get(CorrelationHeader) != cid {
		t.Errorf("correlation header = %q, handler saw %q", rec.Header().Get(CorrelationHeader), cid)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /v1/sessions/:id/messages" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if got, _ := spanAttrString(spans[0], sessionAttr); got != "sess-7" {
		t.Errorf("span %s = %q, want sess-7", sessionAttr, got)
	}
	if got, _ := spanAttrString(spans[0], "http.response.status_code"); got != "200" {
		t.Errorf("span status attribute = %q, want 200", got)
	}

	n, ok := point(t, collect(t, reader), "lorekeeper.http.request.duration", "route", "/v1/sessions/:id/messages")
	if !ok || n != 1 {
		t.Errorf("duration samples for the session route = %d (found %v), want 1", n, ok)
	}
}

func TestMiddleware_NoSessionOutsideSessionRoutes(t *testing.T) {
	m, _ := newTestMetrics(t)
	var sessionID string
	r, exp := tracedRouter(t, m, map[string]gin.HandlerFunc{
		"/v1/ask/:id": func(c *gin.Context) {
			sessionID = SessionID(c.Request.Context())
			c.Status(http.StatusOK)
		},
	})

	get(r, "/v1/ask/x", nil)

	if sessionID != "" {
		t.Errorf("session = %q, want none", sessionID)
	}
	if _, ok := spanAttrString(exp.GetSpans()[0], sessionAttr); ok {
		t.Error("span carries a session attribute")
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	m, reader := newTestMetrics(t)
	r, exp := tracedRouter(t, m, map[string]gin.HandlerFunc{
		"/healthz": func(c *gin.Context) { c.Status(http.StatusOK) },
	})

	if rec := get(r, "/v1/lore/strahd", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if got := exp.GetSpans()[0].Name; got != "HTTP GET unmatched" {
		t.Errorf("span name = %q, want HTTP GET unmatched", got)
	}
	if _, ok := point(t, collect(t, reader), "lorekeeper.http.request.duration", "route", "unmatched"); !ok {
		t.Error("no duration sample labelled unmatched")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _ := newTestMetrics(t)
	var cid string
	r, exp := tracedRouter(t, m, map[string]gin.HandlerFunc{
		"/v1/ask": func(c *gin.Context) {
			cid = CorrelationID(c.Request.Context())
			c.Status(http.StatusOK)
		},
	})

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	rec := get(r, "/v1/ask", http.Header{
		"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"},
	})

	if cid != traceID || rec.Header().Get(CorrelationHeader) != traceID {
		t.Errorf("correlation = %q / header %q, want %s", cid, rec.Header().Get(CorrelationHeader), traceID)
	}
	if got := exp.GetSpans()[0].Parent.SpanID().String(); got != "00f067aa0ba902b7" {
		t.Errorf("parent span = %s, want the caller's span", got)
	}
}

func TestRequestLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		route  string
		status int
		want   slog.Level
	}{
		{"/v1/ask", 200, slog.LevelInfo},
		{"/v1/sessions/:id/messages", 404, slog.LevelWarn},
		{"/v1/ask", 499, slog.LevelWarn},
		{"/v1/ask", 502, slog.LevelError},
		{"/healthz", 200, slog.LevelDebug},
		{"/metrics", 200, slog.LevelDebug},
		{"/readyz", 503, slog.LevelError},
		{"unmatched", 404, slog.LevelWarn},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			t.Parallel()
			if got := requestLevel(tt.route, tt.status); got != tt.want {
				t.Errorf("requestLevel(%q, %d) = %v, want %v", tt.route, tt.status, got, tt.want)
			}
		})
	}
}
