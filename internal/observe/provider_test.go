package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitProvider(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reg := prometheus.NewRegistry()
	exp := tracetest.NewInMemoryExporter()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		Registerer:     reg,
		TraceExporter:  exp,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	counter, err := otel.Meter("test").Int64Counter("lorekeeper_test_events")
	if err != nil {
		t.Fatal(err)
	}
	counter.Add(context.Background(), 3)

	_, span := StartSpan(context.Background(), "ingest.index")
	span.End()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "lorekeeper_test_events") {
			found = true
		}
	}
	if !found {
		t.Error("counter not exported to the supplied registry")
	}

	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		t.Fatalf("global tracer provider is %T", otel.GetTracerProvider())
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "ingest.index" {
		t.Fatalf("exported spans = %v, want one ingest.index span", spans)
	}
	res := spans[0].Resource
	if res == nil {
		t.Fatal("span has no resource")
	}
	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["service.name"] != "lorekeeper" || attrs["service.version"] != "test" {
		t.Errorf("resource service = %q %q, want lorekeeper test", attrs["service.name"], attrs["service.version"])
	}
	if len(attrs["service.instance.id"]) != 36 {
		t.Errorf("service.instance.id = %q, want a UUID", attrs["service.instance.id"])
	}

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
