package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/panelbilling/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "panelbilling/http"

type MiddlewareConfig struct {
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	// ErrorClassifier maps a handler error to the type and code sent to the
	// client. Both are safe to put on spans.
	ErrorClassifier func(error) (string, string)
}

// GinMiddleware opens a server span per request, named after the matched
// route, and tags it with the API surface and the client-facing error code.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	provider := cfg.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	tracer := provider.Tracer(tracerName)

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := strings.ToUpper(c.Request.Method)

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx = withRequestBaggage(ctx)
		ctx, span := tracer.Start(ctx, "HTTP "+method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(SafeAttributes(
				attribute.String("http.method", method),
				attribute.String("http.route", route),
				attribute.String("billing.surface", surfaceOf(route)),
				attribute.String("request_id", obscontext.RequestIDFromContext(ctx)),
			)...),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(SafeAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)

		lastErr := c.Errors.Last()
		if lastErr != nil && cfg.ErrorClassifier != nil {
			errType, errCode := cfg.ErrorClassifier(lastErr.Err)
			span.SetAttributes(SafeAttributes(
				attribute.String("error.type", errType),
				attribute.String("error.code", errCode),
			)...)
		}
		if status >= http.StatusInternalServerError {
			if lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func withRequestBaggage(ctx context.Context) context.Context {
	requestID := obscontext.RequestIDFromContext(ctx)
	if requestID == "" {
		return ctx
	}
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// surfaceOf groups routes into the public billing API, the admin catalog API
// and operational endpoints.
func surfaceOf(route string) string {
	switch {
	case strings.HasPrefix(route, "/api/billing"):
		return "billing"
	case strings.HasPrefix(route, "/api/admin"):
		return "admin"
	default:
		return "ops"
	}
}
