// Package obslog defines the structured logging capability the rest of the
// engine depends on, and a github.com/charmbracelet/log backed default
// implementation.
package obslog

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Logger is the structured logging capability every package in this engine
// depends on, kept as a small interface so it can be validated at
// construction time instead of probed at call time.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// charmLogger adapts *log.Logger to the Logger interface.
type charmLogger struct {
	l *log.Logger
}

// NewDefault returns the logger the CLI and library default to: a
// charmbracelet/log writer to stderr with UTC RFC3339 timestamps.
func NewDefault() Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		Level:           log.InfoLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    false,
	})
	return &charmLogger{l: l}
}

// Wrap adapts an existing *log.Logger, for callers that already configured
// one (e.g. the CLI, which wants ReportCaller: true).
func Wrap(l *log.Logger) Logger {
	return &charmLogger{l: l}
}

func (c *charmLogger) Debug(msg string, kv ...any) { c.l.Debug(msg, kv...) }
func (c *charmLogger) Info(msg string, kv ...any)  { c.l.Info(msg, kv...) }
func (c *charmLogger) Warn(msg string, kv ...any)  { c.l.Warn(msg, kv...) }
func (c *charmLogger) Error(msg string, kv ...any) { c.l.Error(msg, kv...) }

// noop satisfies Logger without producing any output; used when a caller
// passes no logger option.
type noop struct{}

func (noop) Debug(string, ...any) {}
func (noop) Info(string, ...any)  {}
func (noop) Warn(string, ...any)  {}
func (noop) Error(string, ...any) {}

// Noop returns a Logger that discards everything.
func Noop() Logger { return noop{} }
