// Package logging configures the application wide structured loggers.
package logging

import (
	"log/slog"
	"os"
	"sync"
)

var (
	initOnce       sync.Once
	structuredBase *slog.Logger
)

// Init initializes the logging system. Structured JSON logs go to stderr and
// the default slog logger is replaced with a human-readable text handler on
// the same stream, keeping stdout reserved for command output.
func Init(debug bool) {
	initOnce.Do(func() {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))

		structuredBase = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	})
}

// ForService returns a structured logger scoped to the given service name.
// Safe to call before Init, in which case the slog default is used.
func ForService(service string) *slog.Logger {
	base := structuredBase
	if base == nil {
		base = slog.Default()
	}
	return base.With(slog.String("service", service))
}
