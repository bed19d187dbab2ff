package context

import (
	stdcontext "context"
)

type requestIDKey struct{}

// WithRequestID stores the request correlation id.
func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	if requestID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id or an empty string.
func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}
