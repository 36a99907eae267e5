package observability

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ngumi22/zami-web-sub001/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// NewLogger constructs a zap logger emitting Cloud Logging compatible JSON at the supplied level.
// Unknown or empty levels fall back to info.
func NewLogger(level string) (*zap.Logger, error) {
	atomic := zap.NewAtomicLevel()
	if err := atomic.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil || strings.TrimSpace(level) == "" {
		_ = atomic.UnmarshalText([]byte(defaultLogLevel))
	}

	cfg := zap.Config{
		Level:    atomic,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			NameKey:       "logger",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel:   severityEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

func severityEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.WarnLevel:
		enc.AppendString("WARNING")
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		enc.AppendString("CRITICAL")
	default:
		enc.AppendString(strings.ToUpper(level.String()))
	}
}

// ServiceLogFunc is the structured event logger handed to the service layer.
type ServiceLogFunc func(ctx context.Context, event string, fields map[string]any)

// ServiceLogger adapts zap into the event logger used by services. The request-scoped logger stored
// on the context wins over base so request and trace fields are carried along.
func ServiceLogger(base *zap.Logger) ServiceLogFunc {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = base
		}

		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		zfields := make([]zap.Field, 0, len(keys)+1)
		zfields = append(zfields, zap.String("event", event))
		for _, key := range keys {
			zfields = append(zfields, zap.Any(key, fields[key]))
		}

		switch eventLevel(event) {
		case zapcore.DebugLevel:
			logger.Debug(event, zfields...)
		case zapcore.WarnLevel:
			logger.Warn(event, zfields...)
		default:
			logger.Info(event, zfields...)
		}
	}
}

func eventLevel(event string) zapcore.Level {
	switch {
	case strings.HasPrefix(event, "ratelimit."):
		return zapcore.DebugLevel
	case strings.HasSuffix(event, ".failed"), strings.HasSuffix(event, "_failed"), strings.HasSuffix(event, ".collision"), strings.HasSuffix(event, "_missing"):
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// FromContext retrieves the request logger, defaulting to a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}
