// Package logging is the structured-logging wrapper every service in this
// module shares, mirroring the Logger contract the teacher's own
// orchestrator service was built against (With/Info/Error pairs keyed by
// a correlation field), backed by go.uber.org/zap instead of re-deriving
// a logging interface from scratch.
package logging

import (
	"context"

	"go.uber.org/zap"
)

// Logger is a small, structured logging facade over *zap.SugaredLogger.
// With returns a child logger carrying an extra key/value pair, the
// pattern used throughout this module to scope every log line emitted
// while handling one scan request to that request's correlation ID.
type Logger struct {
	z *zap.SugaredLogger
}

// New wraps a configured zap logger. Pass zap.NewProduction() or
// zap.NewDevelopment() built from the process's LogLevel config.
func New(z *zap.Logger) Logger {
	return Logger{z: z.Sugar()}
}

// Sugar returns the underlying *zap.SugaredLogger for packages that take
// one directly (pkg/peimage, pkg/importreader, pkg/iatscan, pkg/threadscan).
func (l Logger) Sugar() *zap.SugaredLogger { return l.z }

// With returns a child logger with key/value appended to every future
// log line. ctx is accepted, not used for propagation here (no
// OpenTelemetry span data is threaded through this module), so that call
// sites stay consistent with the rest of the module's context-carrying
// signatures.
func (l Logger) With(ctx context.Context, key string, value interface{}) Logger {
	return Logger{z: l.z.With(key, value)}
}

func (l Logger) Info(msg string)                          { l.z.Info(msg) }
func (l Logger) Infof(format string, args ...interface{})  { l.z.Infof(format, args...) }
func (l Logger) Error(msg string)                          { l.z.Error(msg) }
func (l Logger) Errorf(format string, args ...interface{}) { l.z.Errorf(format, args...) }
func (l Logger) Warnf(format string, args ...interface{})  { l.z.Warnf(format, args...) }

// Sync flushes any buffered log entries. Call before process exit.
func (l Logger) Sync() error { return l.z.Sync() }
