package tilestream

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/tilestream/internal/upload"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for tilestream and its sub-packages.
// By default, tilestream produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to disable logging.
//
// Log levels used by tilestream:
//   - [slog.LevelDebug]: per-update detail (batches queued, fences signalled)
//   - [slog.LevelInfo]: lifecycle events (manager opened, resource created)
//   - [slog.LevelWarn]: degraded operation (heap too small for packed mips)
//   - [slog.LevelError]: backend failures
//
// Example:
//
//	tilestream.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	upload.SetLogger(l)

	managersMu.Lock()
	for m := range managers {
		propagateLogger(m.be, l)
	}
	managersMu.Unlock()
}

// Logger returns the current logger used by tilestream.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func slogger() *slog.Logger { return loggerPtr.Load() }

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a backend if it implements the
// loggerSetter interface. Called from both SetLogger and NewManager so the
// backend always has the current logger.
func propagateLogger(be any, l *slog.Logger) {
	if ls, ok := be.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
