// Package log wraps log/slog with the module-scoped child-logger
// convention used throughout this node, plus file rotation via
// lumberjack so a long-running full node doesn't grow an unbounded
// log file.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a thin wrapper over *slog.Logger that adds Module, the
// convention every package in this tree uses to scope its log lines
// (e.g. log.Module("chain"), log.Module("mempool")) without each
// package constructing its own handler.
type Logger struct {
	*slog.Logger
}

// New builds a root Logger writing JSON lines to w at the given level.
func New(w io.Writer, level slog.Level) Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return Logger{Logger: slog.New(handler)}
}

// NewRotating builds a root Logger writing to a size/age/count-bounded
// rotating file, for long-running full-node deployments.
func NewRotating(path string, level slog.Level) Logger {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	return New(w, level)
}

// NewStderr builds a root Logger writing to stderr, used when no log
// file path is configured.
func NewStderr(level slog.Level) Logger {
	return New(os.Stderr, level)
}

// Module returns a child logger tagging every line with the given
// module name, the pattern every package-level logger in this tree
// derives itself from.
func (l Logger) Module(name string) Logger {
	return Logger{Logger: l.Logger.With(slog.String("module", name))}
}

// WithContext attaches request-scoped fields (e.g. a block number or
// transaction hash being processed) without losing the module tag.
func (l Logger) WithContext(ctx context.Context, args ...any) Logger {
	return Logger{Logger: l.Logger.With(args...)}
}
