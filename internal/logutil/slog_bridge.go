package logutil

import (
	"context"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapHandler is an slog.Handler that forwards records to a zap logger.
// It lets the library packages, which log through log/slog, share the
// worker binary's zap configuration (encoders, sinks, redaction).
type zapHandler struct {
	logger *zap.Logger
	attrs  []zap.Field
	prefix string
}

// NewSlogBridge returns an slog.Logger backed by the given zap logger.
func NewSlogBridge(logger *zap.Logger) *slog.Logger {
	return slog.New(&zapHandler{logger: logger})
}

func (h *zapHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.Core().Enabled(zapLevel(level))
}

func (h *zapHandler) Handle(_ context.Context, rec slog.Record) error {
	fields := make([]zap.Field, 0, len(h.attrs)+rec.NumAttrs())
	fields = append(fields, h.attrs...)

	rec.Attrs(func(a slog.Attr) bool {
		fields = append(fields, zap.Any(h.prefix+a.Key, a.Value.Any()))
		return true
	})

	h.logger.Log(zapLevel(rec.Level), rec.Message, fields...)
	return nil
}

func (h *zapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]zap.Field, len(h.attrs), len(h.attrs)+len(attrs))
	copy(fields, h.attrs)
	for _, a := range attrs {
		fields = append(fields, zap.Any(h.prefix+a.Key, a.Value.Any()))
	}

	return &zapHandler{logger: h.logger, attrs: fields, prefix: h.prefix}
}

func (h *zapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &zapHandler{logger: h.logger, attrs: h.attrs, prefix: h.prefix + name + "."}
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
