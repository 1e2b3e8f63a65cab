// Package logging defines the structured logger interface used throughout
// the runtime. Every component takes a Logger at construction; nothing
// here reaches for a package-level global.
package logging

import (
	"log/slog"
	"os"
)

// Logger is the narrow structured-logging contract every component depends
// on. It is small enough that wrapping zap, zerolog, or slog is a few
// lines, and permissive enough (key-value varargs) that call sites never
// need to build a struct just to log.
type Logger interface {
	// Info logs a normal operational event: agent joined, stream
	// established, branch completed.
	Info(msg string, args ...any)

	// Warn logs an unusual but non-fatal condition: branch timeout,
	// coherence violation, back-pressure drop.
	Warn(msg string, args ...any)

	// Error logs a handler/branch failure. Never fatal; the caller that
	// triggered it always continues.
	Error(msg string, args ...any)

	// Debug logs fine-grained diagnostic detail, normally disabled in
	// production.
	Debug(msg string, args ...any)
}

// slogLogger adapts log/slog.Logger to the Logger interface.
type slogLogger struct {
	base *slog.Logger
}

// NewSlogLogger wraps an *slog.Logger as a Logger. Pass nil to get a
// logger writing to os.Stderr at Info level.
func NewSlogLogger(base *slog.Logger) Logger {
	if base == nil {
		base = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &slogLogger{base: base}
}

func (l *slogLogger) Info(msg string, args ...any)  { l.base.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.base.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.base.Error(msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.base.Debug(msg, args...) }

// NopLogger discards everything. Useful in tests that don't care about log
// output but need a non-nil Logger.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Debug(string, ...any) {}
