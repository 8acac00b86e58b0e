package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs a synchronous in-memory tracer provider as the
// global provider for the duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func spanAttr(s tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestCorrelationID(t *testing.T) {
	useTestTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	seen := map[string]bool{}
	for range 50 {
		ctx, span := StartSpan(context.Background(), "chat.ask")
		cid := CorrelationID(ctx)
		span.End()
		if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
			t.Fatalf("CorrelationID = %q, want 32 lowercase hex digits", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = true
	}
}

func TestWithSessionID_TagsSpansAndLogs(t *testing.T) {
	exp := useTestTracer(t)
	buf := captureLogs(t)

	ctx, parent := StartSpan(context.Background(), "chat.ask")
	ctx = WithSessionID(ctx, "sess-42")
	_, child := StartSpan(ctx, "search.semantic")
	child.End()
	Logger(ctx).Info("answered")
	parent.End()

	if got := SessionID(ctx); got != "sess-42" {
		t.Errorf("SessionID = %q, want sess-42", got)
	}

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	for _, s := range spans {
		v, ok := spanAttr(s, sessionAttr)
		if !ok || v.AsString() != "sess-42" {
			t.Errorf("span %q: %s = %v (present %v), want sess-42", s.Name, sessionAttr, v.AsString(), ok)
		}
	}

	logged := buf.String()
	for _, want := range []string{"session_id=sess-42", "trace_id=", "span_id="} {
		if !strings.Contains(logged, want) {
			t.Errorf("log output missing %q: %s", want, logged)
		}
	}
}

func TestWithSessionID_Empty(t *testing.T) {
	ctx := context.Background()
	if got := WithSessionID(ctx, ""); got != ctx {
		t.Error("WithSessionID(\"\") should return ctx unchanged")
	}
	if got := SessionID(ctx); got != "" {
		t.Errorf("SessionID = %q, want empty", got)
	}
}

func TestLogger_NoSpan(t *testing.T) {
	buf := captureLogs(t)

	Logger(context.Background()).Info("plain")

	if strings.Contains(buf.String(), "trace_id") || strings.Contains(buf.String(), "session_id") {
		t.Errorf("unexpected correlation attributes: %s", buf.String())
	}
}
