// Package logging is the structured logging facade used by the protocol
// packages. Every Logger built here sits on a handler that scrubs secret
// attributes and raw byte strings before they reach the sink, so identifiers
// and blinded elements cannot leak through a careless log line.
package logging

import (
	"context"
	"fmt"
	"log/slog"
)

const redacted = "[redacted]"

// secretKeys are attribute keys whose values are always replaced.
var secretKeys = map[string]struct{}{
	"exponent":       {},
	"decryption_key": {},
	"identifier":     {},
	"identifiers":    {},
	"value":          {},
	"values":         {},
}

// Logger is the subset of slog the protocol uses.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	With(args ...any) Logger
}

// New returns a Logger writing through logger's handler with secret
// attributes scrubbed. A nil logger means slog.Default().
func New(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return sessionLogger{slog.New(scrubber{next: logger.Handler()})}
}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	return sessionLogger{slog.New(slog.DiscardHandler)}
}

// Redacted records that a secret exists without its value.
func Redacted(key string) slog.Attr {
	return slog.String(key, redacted)
}

type sessionLogger struct {
	l *slog.Logger
}

func (s sessionLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.Log(ctx, slog.LevelDebug, msg, args...)
}

func (s sessionLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.Log(ctx, slog.LevelInfo, msg, args...)
}

func (s sessionLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.Log(ctx, slog.LevelWarn, msg, args...)
}

func (s sessionLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.Log(ctx, slog.LevelError, msg, args...)
}

func (s sessionLogger) With(args ...any) Logger {
	return sessionLogger{s.l.With(args...)}
}

// scrubber is a slog.Handler that rewrites attributes before delegating.
type scrubber struct {
	next slog.Handler
}

func (h scrubber) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h scrubber) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(scrub(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h scrubber) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = scrub(a)
	}
	return scrubber{next: h.next.WithAttrs(clean)}
}

func (h scrubber) WithGroup(name string) slog.Handler {
	return scrubber{next: h.next.WithGroup(name)}
}

// scrub replaces secret keys with the marker and byte strings with their
// length. Groups are walked.
func scrub(a slog.Attr) slog.Attr {
	if _, ok := secretKeys[a.Key]; ok {
		return slog.String(a.Key, redacted)
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		group := v.Group()
		clean := make([]slog.Attr, len(group))
		for i, g := range group {
			clean[i] = scrub(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	case slog.KindAny:
		switch b := v.Any().(type) {
		case []byte:
			return slog.String(a.Key, fmt.Sprintf("[%d bytes]", len(b)))
		case [][]byte:
			return slog.String(a.Key, fmt.Sprintf("[%d byte strings]", len(b)))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}
