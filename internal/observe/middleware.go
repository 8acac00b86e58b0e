package observe

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader echoes the trace ID of every API response so users can
// quote it when reporting a bad answer.
const CorrelationHeader = "X-Correlation-ID"

// pollRoutes are polled by orchestrators and scrapers and would drown the
// request log at info level.
var pollRoutes = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Middleware traces, times and logs every request. Spans continue an incoming
// W3C trace context and are named after the matched route template, so
// /v1/sessions/:id/messages stays one metric series; unmatched paths are
// grouped as "unmatched". Requests under /v1/sessions/:id are tagged with the
// session ID before the handler runs.
func Middleware(m *Metrics) gin.HandlerFunc {
	prop := propagation.TraceContext{}

	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx := prop.Extract(req.Context(), propagation.HeaderCarrier(req.Header))
		ctx, span := StartSpan(ctx, "HTTP "+req.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(req.Method),
				semconv.URLPath(req.URL.Path),
				semconv.HTTPRoute(route),
			),
		)
		defer span.End()
		if strings.HasPrefix(route, "/v1/sessions/:id") {
			ctx = WithSessionID(ctx, c.Param("id"))
		}

		cid := CorrelationID(ctx)
		if cid != "" {
			c.Header(CorrelationHeader, cid)
		}
		prop.Inject(ctx, propagation.HeaderCarrier(c.Writer.Header()))

		c.Request = req.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(start)
		m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("method", req.Method),
			attribute.String("route", route),
			attribute.Int("status", status),
		))
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))

		attrs := []slog.Attr{
			slog.String("method", req.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("error", c.Errors.Last().Error()))
		}
		Logger(ctx).LogAttrs(ctx, requestLevel(route, status), "request completed", attrs...)
	}
}

func requestLevel(route string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case pollRoutes[route]:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
