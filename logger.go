package sandbox

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/sandbox/compute"
	"github.com/gogpu/sandbox/driver"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger returns a logger that discards all output.
func newNopLogger() *slog.Logger {
	return slog.New(nopHandler{})
}

// loggerPtr stores the active logger. Accessed atomically for thread safety.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// slogger returns the current package logger.
func slogger() *slog.Logger {
	return loggerPtr.Load()
}

// SetLogger configures the logger for the sandbox and all of its packages.
// By default, nothing is logged. Pass nil to restore silent behavior.
//
// SetLogger is safe for concurrent use: the logger is stored atomically.
//
// Log levels used:
//   - [slog.LevelDebug]: per-dispatch diagnostics (buffer labels, polls)
//   - [slog.LevelInfo]: lifecycle events (adapter selected, engine created)
//   - [slog.LevelWarn]: recoverable failures (map failed, CPU fallback,
//     rejected dispatch, result timeout)
//
// Example:
//
//	sandbox.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	compute.SetLogger(l)
	driver.SetLogger(l)
	setGPULogger(l)
}

// Logger returns the current logger used by the sandbox.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
