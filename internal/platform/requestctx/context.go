// Package requestctx carries per-request values set by the HTTP middleware chain: the scoped
// logger, Cloud Trace metadata and the resolved caller address used by the rate guard.
package requestctx

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	traceKey  struct{}
	clientKey struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo is the trace context parsed from the inbound request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

func with(ctx context.Context, key, value any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func value[T any](ctx context.Context, key any) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithLogger stores the request logger. A nil logger stores the no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return with(ctx, loggerKey{}, logger)
}

// Logger returns the request logger, or the no-op logger outside a request.
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := value[*zap.Logger](ctx, loggerKey{}); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger returns the shared no-op logger.
func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return with(ctx, traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	return value[TraceInfo](ctx, traceKey{})
}

// TraceID returns the trace id, or "" when the request carried none.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithClientAddress stores the caller address resolved by the HTTP layer.
func WithClientAddress(ctx context.Context, address string) context.Context {
	return with(ctx, clientKey{}, strings.TrimSpace(address))
}

// ClientAddress returns the caller address, or "" when unknown.
func ClientAddress(ctx context.Context) string {
	address, _ := value[string](ctx, clientKey{})
	return address
}
