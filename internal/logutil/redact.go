// Package logutil provides logging helpers for worker processes: a zap
// core that censors sensitive values before they reach any sink, and a
// bridge exposing a zap logger through log/slog for the library packages.
package logutil

import (
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultRedactPatterns matches credentials that tend to leak into logs
// through datasource URIs and provider errors.
var DefaultRedactPatterns = []string{
	`(?i)password='(.*?)'`,
	`(?i)password=\S+`,
}

const redactReplacement = "***"

// redactCore wraps a zapcore.Core and censors message and string field
// contents against a set of patterns. Censoring happens on every write,
// so loggers created before or after wrapping are covered alike.
type redactCore struct {
	zapcore.Core
	patterns []*regexp.Regexp
}

// NewRedaction returns a zap.Option that wraps the logger's core with
// pattern-based redaction. With no patterns, DefaultRedactPatterns is used.
func NewRedaction(patterns ...string) zap.Option {
	if len(patterns) == 0 {
		patterns = DefaultRedactPatterns
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}

	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &redactCore{Core: core, patterns: compiled}
	})
}

func (c *redactCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactCore{
		Core:     c.Core.With(c.redactFields(fields)),
		patterns: c.patterns,
	}
}

func (c *redactCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = c.redact(ent.Message)
	return c.Core.Write(ent, c.redactFields(fields))
}

func (c *redactCore) redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	copy(out, fields)

	for i := range out {
		if out[i].Type == zapcore.StringType {
			out[i].String = c.redact(out[i].String)
		}
	}

	return out
}

func (c *redactCore) redact(s string) string {
	for _, pattern := range c.patterns {
		s = pattern.ReplaceAllString(s, redactReplacement)
	}
	return s
}
